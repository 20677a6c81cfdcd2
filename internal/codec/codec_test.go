package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMDecoderPassthrough(t *testing.T) {
	d := NewPCMDecoder()
	in := []byte{1, 2, 3, 4}
	out, err := d.Decode(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewDecoderUnknownCodec(t *testing.T) {
	_, err := NewDecoder("mp3", 48000, 2)
	assert.Error(t, err)
}

type flakyDecoder struct {
	failures int
}

func (f *flakyDecoder) Decode(compressed []byte) ([]byte, error) {
	if f.failures > 0 {
		f.failures--
		return nil, ErrBackpressure
	}
	return compressed, nil
}
func (f *flakyDecoder) Reset(codecHeader []byte) error { return nil }
func (f *flakyDecoder) Flush() error                   { return nil }

func TestDecodeWithRetrySucceedsAfterBackpressure(t *testing.T) {
	d := &flakyDecoder{failures: 2}
	out, err := DecodeWithRetry(d, []byte{9, 9}, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, out)
}

func TestDecodeWithRetryExhausted(t *testing.T) {
	d := &flakyDecoder{failures: 5}
	_, err := DecodeWithRetry(d, []byte{9, 9}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackpressure))
}
