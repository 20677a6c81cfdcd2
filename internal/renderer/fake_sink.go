package renderer

import "sync"

// FakeSink is an in-memory OutputSink used by tests; it records every
// write and the sequence of playback rates requested.
type FakeSink struct {
	mu sync.Mutex

	sampleRate, channels, bitDepth, bufferBytes int

	written []byte
	rates   []int
	paused  bool
	stopped bool
}

// NewFakeSink constructs an unconfigured FakeSink.
func NewFakeSink() *FakeSink { return &FakeSink{} }

func (s *FakeSink) Configure(sampleRate, channels, bitDepth, bufferBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleRate, s.channels, s.bitDepth, s.bufferBytes = sampleRate, channels, bitDepth, bufferBytes
	return nil
}

func (s *FakeSink) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, b...)
	return len(b), nil
}

func (s *FakeSink) SetPlaybackRate(samplesPerSecond int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, samplesPerSecond)
	return nil
}

func (s *FakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = nil
	return nil
}

func (s *FakeSink) Pause() error  { s.mu.Lock(); defer s.mu.Unlock(); s.paused = true; return nil }
func (s *FakeSink) Resume() error { s.mu.Lock(); defer s.mu.Unlock(); s.paused = false; return nil }
func (s *FakeSink) Stop() error   { s.mu.Lock(); defer s.mu.Unlock(); s.stopped = true; return nil }
func (s *FakeSink) Release() error { return nil }

// Written returns a copy of everything written so far.
func (s *FakeSink) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}
