package protocol

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Binary frame tags.
const (
	TagAudioChunk  byte = 4
	TagArtwork0    byte = 8
	TagArtwork1    byte = 9
	TagArtwork2    byte = 10
	TagArtwork3    byte = 11
	TagVisualizer  byte = 16
)

const binaryHeaderLen = 9 // 1 tag byte + 8 BE timestamp bytes

// BinaryFrame is a decoded binary frame: a tag, the server timestamp the
// frame is stamped with, and the raw payload following the header.
type BinaryFrame struct {
	Tag            byte
	ServerTimeUs   int64
	Payload        []byte
}

// ErrMalformedFrame is returned for frames shorter than the fixed header
// or carrying an unrecognized tag; callers log and drop these, they never
// propagate further.
var ErrMalformedFrame = fmt.Errorf("protocol: malformed binary frame")

// ParseBinaryFrame decodes the 1-byte tag + 8-byte BE signed timestamp +
// payload framing used for audio, artwork, and visualizer frames.
func ParseBinaryFrame(data []byte) (BinaryFrame, error) {
	if len(data) < binaryHeaderLen {
		return BinaryFrame{}, ErrMalformedFrame
	}
	tag := data[0]
	if !isKnownTag(tag) {
		return BinaryFrame{}, ErrMalformedFrame
	}
	ts := int64(binary.BigEndian.Uint64(data[1:9]))
	payload := data[binaryHeaderLen:]
	return BinaryFrame{Tag: tag, ServerTimeUs: ts, Payload: payload}, nil
}

func isKnownTag(tag byte) bool {
	switch tag {
	case TagAudioChunk, TagArtwork0, TagArtwork1, TagArtwork2, TagArtwork3, TagVisualizer:
		return true
	default:
		return false
	}
}

// IsArtworkTag reports whether tag identifies one of the four artwork
// channels.
func IsArtworkTag(tag byte) bool {
	return tag >= TagArtwork0 && tag <= TagArtwork3
}

// ArtworkReassembler accumulates artwork-channel frames keyed by server
// timestamp, bounded by an LRU so a stalled or missing channel cannot grow
// the reassembly buffer without limit.
type ArtworkReassembler struct {
	channels int
	cache    *lru.Cache[int64, map[byte][]byte]
}

// NewArtworkReassembler builds a reassembler holding up to capacity
// in-flight timestamps, each keyed by the channels advertised for the
// current artwork stream (1 to 4).
func NewArtworkReassembler(capacity int) (*ArtworkReassembler, error) {
	cache, err := lru.New[int64, map[byte][]byte](capacity)
	if err != nil {
		return nil, fmt.Errorf("protocol: artwork LRU: %w", err)
	}
	return &ArtworkReassembler{channels: 1, cache: cache}, nil
}

// SetChannelCount configures how many artwork channels must arrive before
// Add reports a frame complete.
func (a *ArtworkReassembler) SetChannelCount(n int) {
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	a.channels = n
}

// Add records one artwork-channel frame and reports whether all channels
// for that timestamp have now arrived, along with the channel map if so.
func (a *ArtworkReassembler) Add(frame BinaryFrame) (map[byte][]byte, bool) {
	channels, ok := a.cache.Get(frame.ServerTimeUs)
	if !ok {
		channels = make(map[byte][]byte, a.channels)
	}
	channels[frame.Tag] = frame.Payload
	a.cache.Add(frame.ServerTimeUs, channels)

	if len(channels) >= a.channels {
		a.cache.Remove(frame.ServerTimeUs)
		return channels, true
	}
	return nil, false
}
