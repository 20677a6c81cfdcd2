package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"

	"github.com/aurastream/aurastream-client/pkg/pcm"
)

// FLACDecoder decodes FLAC frames via github.com/mewkiz/flac. The server's
// codec_header carries the STREAMINFO metadata block (everything up to and
// including the first frame boundary of a standard .flac file); Decode
// prepends it to every compressed frame buffer since the stream-oriented
// parser needs stream metadata in scope before it can parse a frame.
type FLACDecoder struct {
	streamInfoPrefix []byte
}

// NewFLACDecoder constructs a FLAC decoder; call Reset with the stream's
// codec_header before the first Decode.
func NewFLACDecoder() *FLACDecoder {
	return &FLACDecoder{}
}

func (d *FLACDecoder) Reset(codecHeader []byte) error {
	if len(codecHeader) == 0 {
		return errors.New("codec: flac requires a codec_header carrying STREAMINFO")
	}
	d.streamInfoPrefix = append([]byte(nil), codecHeader...)
	return nil
}

func (d *FLACDecoder) Decode(compressed []byte) ([]byte, error) {
	if d.streamInfoPrefix == nil {
		return nil, errors.New("codec: flac decoder used before Reset")
	}

	r := io.MultiReader(bytes.NewReader(d.streamInfoPrefix), bytes.NewReader(compressed))
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("codec: flac stream init: %w", err)
	}
	defer stream.Close()

	var out []byte
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("codec: flac frame parse: %w", err)
		}
		out = append(out, flacFrameToInterleavedPCM16(f)...)
	}
	return out, nil
}

func (d *FLACDecoder) Flush() error { return nil }

func flacFrameToInterleavedPCM16(f *frame.Frame) []byte {
	channels := len(f.Subframes)
	if channels == 0 {
		return nil
	}
	samples := make([]int16, 0, int(f.BlockSize)*channels)
	for i := 0; i < int(f.BlockSize); i++ {
		for _, sf := range f.Subframes {
			if i >= len(sf.Samples) {
				samples = append(samples, 0)
				continue
			}
			samples = append(samples, int16(sf.Samples[i]))
		}
	}
	return pcm.Int16ToLE(samples)
}
