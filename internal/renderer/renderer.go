// Package renderer schedules decoded PCM chunks against their deadlines
// and writes them to an output sink, correcting drift with a four-tier
// hierarchy: deadband, sample insert/delete, rate adjustment, hard resync.
package renderer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/pkg/pcm"
)

const (
	deadbandUs        = 1_000
	sampleTierMaxUs   = 15_000
	rateTierMaxUs     = 200_000
	rateGain          = 0.1
	rateMin           = 0.98
	rateMax           = 1.02
	scheduleAheadWait = 20 * time.Millisecond
	emaAlpha          = 0.1
)

// StreamConfig describes the active audio format. Changing any field
// invalidates the renderer's queue.
type StreamConfig struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// Chunk is one server-timestamped unit of decoded PCM audio.
type Chunk struct {
	ServerTimeUs    int64
	ClientDeadlineUs int64
	PCM             []byte
	FrameCount      int
}

// OutputSink is the audio device abstraction the renderer writes to.
type OutputSink interface {
	Configure(sampleRate, channels, bitDepth, bufferBytes int) error
	Write(pcmBytes []byte) (n int, err error)
	SetPlaybackRate(samplesPerSecond int) error
	Flush() error
	Pause() error
	Resume() error
	Stop() error
	Release() error
}

// Filter is the subset of timesync.Filter the renderer depends on.
type Filter interface {
	IsReady() bool
	ServerToClient(serverTimeUs int64) int64
}

// MonotonicClock abstracts wall-clock reads for deterministic tests.
type MonotonicClock func() int64

// Stats exposes renderer counters as a point-in-time snapshot.
type Stats struct {
	ChunksPlayed  int64
	ChunksDropped int64
	QueuedSamples int64
	SyncErrorEmaUs float64
}

// Renderer owns the chunk FIFO, the generation counter used to discard
// stale in-flight chunks after a stream reset, and the output sink.
type Renderer struct {
	mu sync.Mutex

	filter Filter
	sink   OutputSink
	logger *zap.Logger
	now    MonotonicClock

	cfg        StreamConfig
	configured bool

	queue      []Chunk
	generation int64

	chunksPlayed  int64
	chunksDropped int64
	queuedSamples int64
	syncErrorEma  float64

	playing    bool
	cancel     context.CancelFunc
	loopDone   chan struct{}
}

// New constructs a Renderer against the given Filter and output sink.
func New(filter Filter, sink OutputSink, logger *zap.Logger, now MonotonicClock) *Renderer {
	if now == nil {
		now = func() int64 { return time.Now().UnixMicro() }
	}
	return &Renderer{filter: filter, sink: sink, logger: logger, now: now}
}

// Configure allocates the sink for the advertised format. 16-bit mono and
// stereo are mandatory; other bit depths are optional and must fail
// cleanly rather than corrupt playback.
func (r *Renderer) Configure(cfg StreamConfig, bufferBytes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.BitDepth != 16 || (cfg.Channels != 1 && cfg.Channels != 2) {
		return &UnsupportedFormatError{Config: cfg}
	}
	if err := r.sink.Configure(cfg.SampleRate, cfg.Channels, cfg.BitDepth, bufferBytes); err != nil {
		return err
	}
	r.cfg = cfg
	r.configured = true
	r.clearLocked()
	return nil
}

// UnsupportedFormatError is returned when Configure is asked for a format
// the sink cannot produce.
type UnsupportedFormatError struct {
	Config StreamConfig
}

func (e *UnsupportedFormatError) Error() string {
	return "renderer: unsupported stream format"
}

// Enqueue converts a server timestamp to a client deadline via the Filter
// and pushes the resulting chunk. Dropped silently if the Filter is not
// yet ready, per the FilterNotReady soft-condition contract.
func (r *Renderer) Enqueue(serverTimeUs int64, pcmBytes []byte) {
	if !r.filter.IsReady() {
		return
	}
	deadline := r.filter.ServerToClient(serverTimeUs)

	r.mu.Lock()
	defer r.mu.Unlock()
	frameCount := pcm.FrameCount(pcmBytes, channelsOrDefault(r.cfg.Channels))
	r.queue = append(r.queue, Chunk{
		ServerTimeUs:     serverTimeUs,
		ClientDeadlineUs: deadline,
		PCM:              pcmBytes,
		FrameCount:       frameCount,
	})
	r.queuedSamples += int64(frameCount)
}

func channelsOrDefault(c int) int {
	if c <= 0 {
		return 1
	}
	return c
}

// Clear bumps the generation, flushes the queue and sink, and zeroes the
// sync-error EMA. Chunks carry no generation of their own: a playback-loop
// iteration that peeked a chunk before the bump neither writes it (if it
// sees the bump before writing) nor pops the new queue's head.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

func (r *Renderer) clearLocked() {
	r.generation++
	r.queue = nil
	r.queuedSamples = 0
	r.syncErrorEma = 0
	if r.sink != nil {
		_ = r.sink.Flush()
	}
}

// Stats returns a snapshot of the renderer's counters.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ChunksPlayed:   r.chunksPlayed,
		ChunksDropped:  r.chunksDropped,
		QueuedSamples:  r.queuedSamples,
		SyncErrorEmaUs: r.syncErrorEma,
	}
}

// Start launches the playback loop as a single cooperative task. Calling
// Start while already running is a no-op.
func (r *Renderer) Start() {
	r.mu.Lock()
	if r.playing {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.playing = true
	r.loopDone = make(chan struct{})
	done := r.loopDone
	r.mu.Unlock()

	go func() {
		defer close(done)
		r.playbackLoop(ctx)
	}()
}

// Stop cancels the playback loop using the two-phase pattern required to
// avoid deadlock: the task handle is captured and cleared under lock, and
// cancellation is awaited outside the lock since the loop itself needs the
// lock to exit cleanly.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.playing {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.loopDone
	r.playing = false
	r.cancel = nil
	r.loopDone = nil
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
	}
	_ = r.sink.Stop()
}

// Pause suspends the sink without tearing down the playback loop.
func (r *Renderer) Pause() error { return r.sink.Pause() }

// Resume resumes a paused sink.
func (r *Renderer) Resume() error { return r.sink.Resume() }

func (r *Renderer) playbackLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			if !sleepCtx(ctx, scheduleAheadWait) {
				return
			}
			continue
		}
		head := r.queue[0]
		gen := r.generation
		r.mu.Unlock()

		now := r.now()
		slack := head.ClientDeadlineUs - now

		switch {
		case slack > rateTierMaxUs:
			if !sleepCtx(ctx, scheduleAheadWait) {
				return
			}
			continue

		case slack < -rateTierMaxUs:
			r.popHead(gen)
			r.mu.Lock()
			r.chunksDropped++
			r.mu.Unlock()
			if r.logger != nil {
				r.logger.Warn("hard_resync", zap.Int64("slack_us", slack))
			}
			continue

		case abs64(slack) <= deadbandUs:
			r.writeChunk(head, gen, now, 1.0)
			continue

		case slack > deadbandUs && slack <= sampleTierMaxUs:
			silence := pcm.SilenceFrames(samplesForDuration(slack, r.sampleRate()), r.channels())
			r.writePayload(silence)
			r.writeChunk(head, gen, now, 1.0)
			continue

		case slack < -deadbandUs && abs64(slack) <= sampleTierMaxUs:
			advanced := head
			advanced.PCM = pcm.AdvanceFrames(head.PCM, samplesForDuration(-slack, r.sampleRate()), r.channels())
			r.writeChunk(advanced, gen, now, 1.0)
			continue

		default:
			// sampleTierMaxUs < |slack| <= rateTierMaxUs: rate-adjust tier.
			rate := clampRate(1.0 + float64(slack)*rateGain/1e6)
			r.writeChunk(head, gen, now, rate)
			continue
		}
	}
}

func (r *Renderer) sampleRate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.SampleRate == 0 {
		return 48_000
	}
	return r.cfg.SampleRate
}

func (r *Renderer) channels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return channelsOrDefault(r.cfg.Channels)
}

func (r *Renderer) writePayload(b []byte) {
	if len(b) == 0 {
		return
	}
	n, err := r.sink.Write(b)
	if err != nil && r.logger != nil {
		r.logger.Warn("renderer sink write failed", zap.Error(err))
	}
	if n < len(b) && r.logger != nil {
		r.logger.Warn("renderer partial write", zap.Int("wrote", n), zap.Int("want", len(b)))
	}
}

// writeChunk applies the given playback rate, writes the chunk's PCM to
// the sink, pops it from the queue, and updates the running counters. It
// does nothing if a stream reset has bumped the generation since gen.
func (r *Renderer) writeChunk(c Chunk, gen int64, now int64, rate float64) {
	r.mu.Lock()
	stale := r.generation != gen
	r.mu.Unlock()
	if stale {
		return
	}
	if err := r.sink.SetPlaybackRate(int(float64(r.sampleRate()) * rate)); err != nil && r.logger != nil {
		r.logger.Warn("set playback rate failed", zap.Error(err))
	}
	r.writePayload(c.PCM)
	r.popHead(gen)

	r.mu.Lock()
	r.chunksPlayed++
	r.queuedSamples -= int64(c.FrameCount)
	if r.queuedSamples < 0 {
		r.queuedSamples = 0
	}
	r.syncErrorEma = emaAlpha*float64(now-c.ClientDeadlineUs) + (1-emaAlpha)*r.syncErrorEma
	r.mu.Unlock()
}

// popHead removes the queue head if gen still matches the current
// generation, i.e. no stream reset raced with this iteration.
func (r *Renderer) popHead(gen int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen || len(r.queue) == 0 {
		return
	}
	r.queue = r.queue[1:]
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampRate(v float64) float64 {
	if v < rateMin {
		return rateMin
	}
	if v > rateMax {
		return rateMax
	}
	return v
}

func samplesForDuration(durationUs int64, sampleRate int) int {
	n := (durationUs * int64(sampleRate)) / 1_000_000
	if n < 0 {
		return 0
	}
	return int(n)
}
