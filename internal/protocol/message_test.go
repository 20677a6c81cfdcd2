package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHelloPreservesFormatOrder(t *testing.T) {
	formats := []AudioFormat{
		{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16},
		{Codec: "flac", SampleRate: 48000, Channels: 2, BitDepth: 16},
		{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16},
	}
	data, err := BuildClientHello(ClientHelloPayload{
		ClientID:        "11111111-1111-1111-1111-111111111111",
		Name:            "kitchen",
		ProtocolVersion: 1,
		Roles:           []string{"player"},
		PlayerSupport:   PlayerSupport{SupportedFormats: formats},
	})
	require.NoError(t, err)

	env, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeClientHello, env.Type)

	var payload ClientHelloPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.Len(t, payload.PlayerSupport.SupportedFormats, 3)
	for i, f := range formats {
		assert.Equal(t, f.Codec, payload.PlayerSupport.SupportedFormats[i].Codec)
	}
}

func TestParseServerTime(t *testing.T) {
	data, err := marshalEnvelope(TypeServerTime, ServerTimePayload{
		ClientTransmitUs: 100,
		ServerReceiveUs:  150,
		ServerTransmitUs: 160,
	})
	require.NoError(t, err)

	env, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, TypeServerTime, env.Type)

	p, err := ParseServerTime(env.Payload)
	require.NoError(t, err)
	assert.EqualValues(t, 100, p.ClientTransmitUs)
	assert.EqualValues(t, 160, p.ServerTransmitUs)
}

func TestUnknownTypeDoesNotErrorAtEnvelopeLevel(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"server/something_new","payload":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "server/something_new", env.Type)
}
