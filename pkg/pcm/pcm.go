// Package pcm provides helpers for interleaved 16-bit PCM buffers shared
// between the codec and renderer layers.
package pcm

import (
	"bytes"
	"encoding/binary"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// Int16ToLE converts int16 samples to raw little-endian bytes.
func Int16ToLE(samples []int16) []byte {
	var buf bytes.Buffer
	buf.Grow(len(samples) * BytesPerSample)
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// LEToInt16 converts raw little-endian bytes back to int16 samples.
// Trailing bytes that do not form a complete sample are discarded.
func LEToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/BytesPerSample)
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &out)
	return out
}

// FrameCount returns the number of interleaved frames held in b given the
// channel count, i.e. the number of per-channel sample groups.
func FrameCount(b []byte, channels int) int {
	if channels <= 0 {
		return 0
	}
	return len(b) / (BytesPerSample * channels)
}

// SilenceFrames returns n frames of interleaved zero-filled PCM.
func SilenceFrames(n, channels int) []byte {
	if n <= 0 || channels <= 0 {
		return nil
	}
	return make([]byte, n*channels*BytesPerSample)
}

// AdvanceFrames drops the first n frames from an interleaved PCM buffer,
// used by the renderer's sample-level correction tier to skip ahead when
// the client is running late.
func AdvanceFrames(b []byte, n, channels int) []byte {
	skip := n * channels * BytesPerSample
	if skip >= len(b) {
		return nil
	}
	if skip <= 0 {
		return b
	}
	return b[skip:]
}
