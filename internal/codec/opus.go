package codec

import (
	"errors"
	"fmt"
	"sync"

	"layeh.com/gopus"

	"github.com/aurastream/aurastream-client/pkg/pcm"
)

// opusFrameSamples is the frame size (samples per channel) requested from
// the decoder per packet; 20ms at 48kHz, the span this wire protocol's
// audio chunks are built around.
const opusFrameSamples = 960

// OpusDecoder wraps layeh.com/gopus, generalized to an arbitrary sample
// rate and channel count rather than the teacher's Discord-fixed 48kHz
// stereo pipeline.
type OpusDecoder struct {
	mu         sync.Mutex
	decoder    *gopus.Decoder
	sampleRate int
	channels   int
	closed     bool
}

// NewOpusDecoder constructs an Opus decoder for the given format.
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decoder: %w", err)
	}
	return &OpusDecoder{decoder: dec, sampleRate: sampleRate, channels: channels}, nil
}

func (o *OpusDecoder) Decode(compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, errors.New("codec: opus payload empty")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errors.New("codec: opus decoder closed")
	}

	samples, err := o.decoder.Decode(compressed, opusFrameSamples, false)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decode: %w", err)
	}
	return pcm.Int16ToLE(samples), nil
}

// Reset rebuilds the underlying Opus decoder state; Opus has no
// in-band header to consume beyond sample rate/channels, which are fixed
// at construction, so Reset only clears the stateful decode history.
func (o *OpusDecoder) Reset(codecHeader []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	dec, err := gopus.NewDecoder(o.sampleRate, o.channels)
	if err != nil {
		return fmt.Errorf("codec: opus reset: %w", err)
	}
	o.decoder = dec
	o.closed = false
	return nil
}

// Flush is a no-op: Opus decode state should survive a flush so the
// codec session is not restarted mid-stream.
func (o *OpusDecoder) Flush() error { return nil }
