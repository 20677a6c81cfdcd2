// Package protocol encodes and decodes the wire messages exchanged with
// the streaming server: JSON text control frames and tagged binary
// audio/artwork frames.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound text message types.
const (
	TypeServerHello      = "server/hello"
	TypeServerTime       = "server/time"
	TypeServerState      = "server/state"
	TypeServerCommand    = "server/command"
	TypeGroupUpdate      = "group/update"
	TypeStreamStart      = "stream/start"
	TypeStreamClear      = "stream/clear"
	TypeClientSyncOffset = "client/sync_offset"
)

// Outbound text message types.
const (
	TypeClientHello   = "client/hello"
	TypeClientTime    = "client/time"
	TypeClientState   = "client/state"
	TypeClientCommand = "client/command"
	TypeClientGoodbye = "client/goodbye"
)

// Envelope is the top-level `{"type":"...","payload":{...}}` JSON object
// shared by every text frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AudioFormat is one entry of the ordered supported_formats array
// advertised in client/hello. The server selects the first format in the
// array it can produce, so field order within the slice is a protocol
// contract and must be preserved end to end.
type AudioFormat struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// PlayerSupport describes the formats this client can render, in
// preference order.
type PlayerSupport struct {
	SupportedFormats []AudioFormat `json:"supported_formats"`
}

// ClientHelloPayload is the payload of an outbound client/hello.
type ClientHelloPayload struct {
	ClientID        string        `json:"client_id"`
	Name            string        `json:"name"`
	ProtocolVersion int           `json:"protocol_version"`
	Roles           []string      `json:"roles"`
	DeviceInfo      string        `json:"device_info"`
	PlayerSupport   PlayerSupport `json:"player_support"`
}

// ClientTimePayload is the payload of an outbound client/time probe.
type ClientTimePayload struct {
	ClientTransmitUs int64 `json:"client_transmit_us"`
}

// ServerHelloPayload is the payload of an inbound server/hello. ActiveRoles
// is logged by the coordinator but not acted on, since only the player
// role is in scope for this client.
type ServerHelloPayload struct {
	ActiveRoles []string `json:"active_roles"`
}

// ServerTimePayload is the payload of an inbound server/time reply.
type ServerTimePayload struct {
	ClientTransmitUs int64 `json:"client_transmit_us"`
	ServerReceiveUs  int64 `json:"server_receive_us"`
	ServerTransmitUs int64 `json:"server_transmit_us"`
}

// ClientStatePayload is the payload of an outbound client/state report.
type ClientStatePayload struct {
	State         string `json:"state"`
	QueuedSamples int64  `json:"queued_samples"`
	ChunksPlayed  int64  `json:"chunks_played"`
	ChunksDropped int64  `json:"chunks_dropped"`
}

// ClientGoodbyePayload is the payload of an outbound client/goodbye.
type ClientGoodbyePayload struct {
	Reason string `json:"reason"`
}

// StreamStartPayload is the payload of an inbound stream/start.
type StreamStartPayload struct {
	Codec        string `json:"codec"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
	BitDepth     int    `json:"bit_depth"`
	CodecHeader  string `json:"codec_header,omitempty"`
}

// SyncOffsetPayload is the payload of an inbound client/sync_offset,
// a live update to the static playback delay.
type SyncOffsetPayload struct {
	StaticDelayMs int `json:"static_delay_ms"`
}

// BuildClientHello serializes a client/hello message with the given
// ordered supported formats.
func BuildClientHello(p ClientHelloPayload) ([]byte, error) {
	return marshalEnvelope(TypeClientHello, p)
}

// BuildClientTime serializes a client/time probe.
func BuildClientTime(clientTransmitUs int64) ([]byte, error) {
	return marshalEnvelope(TypeClientTime, ClientTimePayload{ClientTransmitUs: clientTransmitUs})
}

// BuildClientState serializes a client/state report.
func BuildClientState(p ClientStatePayload) ([]byte, error) {
	return marshalEnvelope(TypeClientState, p)
}

// BuildClientGoodbye serializes a client/goodbye.
func BuildClientGoodbye(reason string) ([]byte, error) {
	return marshalEnvelope(TypeClientGoodbye, ClientGoodbyePayload{Reason: reason})
}

func marshalEnvelope(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

// ParseEnvelope unmarshals the top-level type/payload envelope. Callers
// then unmarshal Payload a second time according to Type.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: parse envelope: %w", err)
	}
	return env, nil
}

// ParseServerHello unmarshals a server/hello payload. An empty payload
// (no active_roles field) is valid and yields a nil slice.
func ParseServerHello(payload json.RawMessage) (ServerHelloPayload, error) {
	if len(payload) == 0 {
		return ServerHelloPayload{}, nil
	}
	var p ServerHelloPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ServerHelloPayload{}, fmt.Errorf("protocol: parse server/hello: %w", err)
	}
	return p, nil
}

// ParseServerTime unmarshals a server/time payload.
func ParseServerTime(payload json.RawMessage) (ServerTimePayload, error) {
	var p ServerTimePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ServerTimePayload{}, fmt.Errorf("protocol: parse server/time: %w", err)
	}
	return p, nil
}

// ParseStreamStart unmarshals a stream/start payload.
func ParseStreamStart(payload json.RawMessage) (StreamStartPayload, error) {
	var p StreamStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return StreamStartPayload{}, fmt.Errorf("protocol: parse stream/start: %w", err)
	}
	return p, nil
}

// ParseSyncOffset unmarshals a client/sync_offset payload.
func ParseSyncOffset(payload json.RawMessage) (SyncOffsetPayload, error) {
	var p SyncOffsetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return SyncOffsetPayload{}, fmt.Errorf("protocol: parse sync_offset: %w", err)
	}
	return p, nil
}
