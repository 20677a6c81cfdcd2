package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurastream/aurastream-client/internal/config"
	"github.com/aurastream/aurastream-client/internal/protocol"
	"github.com/aurastream/aurastream-client/internal/renderer"
	"github.com/aurastream/aurastream-client/internal/timesync"
)

type fakeTransport struct {
	connectErr error
	sentText   [][]byte
	handlers   Handlers
}

func (t *fakeTransport) Connect(_ context.Context, h Handlers) error {
	t.handlers = h
	if t.connectErr != nil {
		return t.connectErr
	}
	h.OnOpen()
	return nil
}

func (t *fakeTransport) SendText(data []byte) bool {
	t.sentText = append(t.sentText, data)
	return true
}
func (t *fakeTransport) SendBinary(data []byte) bool { return true }
func (t *fakeTransport) Close(code int, reason string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Player: config.PlayerConfig{
			PlayerID:       "test-player",
			DeviceName:     "test-device",
			PreferredCodec: config.CodecPCM,
		},
	}
}

func newTestCoordinator(t *testing.T, transport *fakeTransport) *Coordinator {
	t.Helper()
	filter := timesync.NewFilter(timesync.Dim2, 0)
	driver := timesync.NewDriver(filter, &transportProbeSender{transport: transport}, timesync.SystemClock{}, nil)
	render := renderer.New(filter, renderer.NewFakeSink(), nil, nil)
	return New(testConfig(), transport, filter, driver, render, nil)
}

func TestCoordinatorHandshakeReachesReadyAndEmitsConnected(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestCoordinator(t, transport)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, HandshakeSent, c.State())
	require.Len(t, transport.sentText, 1)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(transport.sentText[0], &env))
	assert.Equal(t, protocol.TypeClientHello, env.Type)

	transport.handlers.OnText(mustEnvelope(t, protocol.TypeServerHello, struct{}{}))

	assert.Equal(t, Ready, c.State())
	select {
	case ev := <-c.Events():
		assert.IsType(t, Connected{}, ev)
	default:
		t.Fatal("expected a Connected event")
	}
}

func TestCoordinatorReconnectFailsAfterMaxAttempts(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestCoordinator(t, transport)
	require.NoError(t, c.Connect(context.Background()))
	transport.handlers.OnText(mustEnvelope(t, protocol.TypeServerHello, struct{}{}))
	require.Equal(t, Ready, c.State())

	// Make every subsequent reconnect attempt fail instantly, and keep
	// skipping each attempt's backoff delay via NetworkAvailable so the
	// test doesn't wait out the real {500ms,1s,2s,4s,8s} schedule.
	transport.connectErr = assertErr
	c.beginReconnect()

	stopPoking := make(chan struct{})
	defer close(stopPoking)
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.NetworkAvailable()
			case <-stopPoking:
				return
			}
		}
	}()

	require.Eventually(t, func() bool { return c.State() == Failed }, 2*time.Second, time.Millisecond)

	var gotError bool
	for {
		select {
		case ev := <-c.Events():
			if _, ok := ev.(ErrorEvent); ok {
				gotError = true
			}
		default:
			assert.True(t, gotError, "expected an ErrorEvent once attempts were exhausted")
			return
		}
	}
}

func TestCoordinatorFreezesOnFirstReconnectAttempt(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestCoordinator(t, transport)
	require.NoError(t, c.Connect(context.Background()))
	transport.handlers.OnText(mustEnvelope(t, protocol.TypeServerHello, struct{}{}))

	for i := 0; i < 10; i++ {
		c.filter.AddMeasurement(int64(1000+i), 200, int64((i+1)*500_000), 400)
	}
	require.True(t, c.filter.IsReady())

	transport.connectErr = assertErr
	c.beginReconnect()

	require.Eventually(t, func() bool { return c.filter.IsFrozen() }, time.Second, time.Millisecond)
	c.NetworkAvailable()
}

var assertErr = &connectError{}

type connectError struct{}

func (*connectError) Error() string { return "connection refused" }

func mustEnvelope(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(protocol.Envelope{Type: typ, Payload: raw})
	require.NoError(t, err)
	return data
}
