// Package codec decodes compressed audio payloads to interleaved 16-bit
// PCM, adapted from the teacher's Opus wrapper and generalized beyond a
// single fixed sample rate and channel count.
package codec

import (
	"errors"
	"fmt"
)

// ErrBackpressure signals the sink-side buffer was full and the caller
// should retry the same input frame rather than drop it; stateful codecs
// such as Opus desynchronize if a frame is silently dropped after a single
// failed attempt.
var ErrBackpressure = errors.New("codec: output buffer under backpressure")

// Decoder converts one compressed frame to interleaved 16-bit PCM bytes.
// Implementations must accept a codec header at the start of a stream via
// Reset, and Flush must not restart the underlying codec session.
type Decoder interface {
	// Decode converts one compressed frame. Implementations that cannot
	// make progress because of output backpressure return ErrBackpressure
	// so the caller can retry the same frame.
	Decode(compressed []byte) (pcm []byte, err error)
	// Reset reinitializes the decoder for a new stream, consuming an
	// optional codec header.
	Reset(codecHeader []byte) error
	// Flush releases any buffered output without tearing down decoder
	// state, so a subsequent Decode continues the same codec session.
	Flush() error
}

// DecodeWithRetry calls d.Decode, retrying up to maxRetries times while
// the decoder reports backpressure. This is the only place callers should
// invoke Decode, so the "retry, never drop" contract is enforced in one spot.
func DecodeWithRetry(d Decoder, compressed []byte, maxRetries int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		pcm, err := d.Decode(compressed)
		if err == nil {
			return pcm, nil
		}
		if !errors.Is(err, ErrBackpressure) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("codec: exhausted %d retries: %w", maxRetries, lastErr)
}

// NewDecoder builds the Decoder for the given codec name, one of
// pcm|flac|opus, at the given sample rate and channel count.
func NewDecoder(codecName string, sampleRate, channels int) (Decoder, error) {
	switch codecName {
	case "pcm":
		return NewPCMDecoder(), nil
	case "flac":
		return NewFLACDecoder(), nil
	case "opus":
		return NewOpusDecoder(sampleRate, channels)
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", codecName)
	}
}
