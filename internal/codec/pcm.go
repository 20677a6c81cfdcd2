package codec

// PCMDecoder is a passthrough Decoder for already-PCM streams; the server
// may still send a codec_header (e.g. declaring bit depth) which this
// decoder accepts but does not need to act on.
type PCMDecoder struct{}

// NewPCMDecoder constructs a passthrough decoder.
func NewPCMDecoder() *PCMDecoder { return &PCMDecoder{} }

func (p *PCMDecoder) Decode(compressed []byte) ([]byte, error) {
	return compressed, nil
}

func (p *PCMDecoder) Reset(codecHeader []byte) error { return nil }

func (p *PCMDecoder) Flush() error { return nil }
