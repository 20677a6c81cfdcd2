package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFilter struct {
	ready  bool
	offset int64 // serverTimeUs - offset == deadline
}

func (f *fakeFilter) IsReady() bool { return f.ready }
func (f *fakeFilter) ServerToClient(serverTimeUs int64) int64 {
	return serverTimeUs - f.offset
}

func newTestRenderer(t *testing.T, nowUs int64) (*Renderer, *FakeSink, *fakeFilter) {
	t.Helper()
	sink := NewFakeSink()
	filter := &fakeFilter{ready: true}
	r := New(filter, sink, nil, func() int64 { return nowUs })
	require.NoError(t, r.Configure(StreamConfig{Codec: "pcm", SampleRate: 48_000, Channels: 2, BitDepth: 16}, 32<<20))
	return r, sink, filter
}

// E4 — Hard-resync drop.
func TestScenarioE4HardResyncDrop(t *testing.T) {
	now := int64(10_000_000)
	r, sink, filter := newTestRenderer(t, now)
	filter.offset = 300_000 // deadline = now - 300ms

	payload := make([]byte, 480*2*2)
	r.Enqueue(now, payload)

	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Stats().ChunksDropped == 1 }, time.Second, time.Millisecond)

	stats := r.Stats()
	assert.EqualValues(t, 0, stats.ChunksPlayed)
	assert.Empty(t, sink.Written())
}

// E5 — Sample-insert tier.
func TestScenarioE5SampleInsertTier(t *testing.T) {
	now := int64(10_000_000)
	r, sink, filter := newTestRenderer(t, now)
	filter.offset = -5_000 // deadline = now + 5ms

	frames := 4800
	payload := make([]byte, frames*2*2)
	for i := range payload {
		payload[i] = 0xAB
	}
	r.Enqueue(now, payload)

	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Stats().ChunksPlayed == 1 }, time.Second, time.Millisecond)

	written := sink.Written()
	wantSilenceFrames := 240
	wantSilenceBytes := wantSilenceFrames * 2 * 2
	require.GreaterOrEqual(t, len(written), wantSilenceBytes+len(payload))

	for _, b := range written[:wantSilenceBytes] {
		assert.Equal(t, byte(0), b)
	}
	assert.Equal(t, payload, written[wantSilenceBytes:wantSilenceBytes+len(payload)])
}

func TestEnqueueDroppedWhenFilterNotReady(t *testing.T) {
	sink := NewFakeSink()
	filter := &fakeFilter{ready: false}
	r := New(filter, sink, nil, func() int64 { return 0 })
	require.NoError(t, r.Configure(StreamConfig{SampleRate: 48_000, Channels: 2, BitDepth: 16}, 1<<20))

	r.Enqueue(1000, make([]byte, 100))
	assert.EqualValues(t, 0, r.Stats().QueuedSamples)
}

func TestClearBumpsGenerationAndEmptiesQueue(t *testing.T) {
	now := int64(1_000_000)
	r, _, filter := newTestRenderer(t, now)
	filter.offset = 0

	r.Enqueue(now, make([]byte, 960*2*2))
	require.NotZero(t, r.Stats().QueuedSamples)
	genBefore := r.generation

	r.Clear()
	assert.Equal(t, genBefore+1, r.generation)
	assert.EqualValues(t, 0, r.Stats().QueuedSamples)

	filter.offset = 0
	r.Enqueue(now, make([]byte, 960*2*2))
	assert.NotZero(t, r.Stats().QueuedSamples)
}

func TestConfigureRejectsUnsupportedBitDepth(t *testing.T) {
	sink := NewFakeSink()
	filter := &fakeFilter{ready: true}
	r := New(filter, sink, nil, nil)
	err := r.Configure(StreamConfig{SampleRate: 48_000, Channels: 2, BitDepth: 24}, 1<<20)
	require.Error(t, err)
	var unsupported *UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)
}

func TestDeadbandTierWritesAtNaturalRate(t *testing.T) {
	now := int64(5_000_000)
	r, sink, filter := newTestRenderer(t, now)
	filter.offset = 0 // deadline == now, within deadband

	payload := make([]byte, 960*2*2)
	r.Enqueue(now, payload)

	r.Start()
	defer r.Stop()

	require.Eventually(t, func() bool { return r.Stats().ChunksPlayed == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, payload, sink.Written())
}
