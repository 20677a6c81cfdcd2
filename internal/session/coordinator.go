package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/codec"
	"github.com/aurastream/aurastream-client/internal/config"
	"github.com/aurastream/aurastream-client/internal/protocol"
	"github.com/aurastream/aurastream-client/internal/renderer"
	"github.com/aurastream/aurastream-client/internal/timesync"
)

const (
	maxReconnectAttempts  = 5
	backoffBaseMs         = 500
	backoffCapMs          = 10_000
	protocolVersion       = 1
	closeCodeNormal       = 1000
	codecDecodeMaxRetries = 3
)

// Handlers are the lifecycle callbacks a Transport invokes.
type Handlers struct {
	OnOpen    func()
	OnText    func(data []byte)
	OnBinary  func(data []byte)
	OnClosing func(code int, reason string)
	OnClosed  func(code int, reason string)
	OnFailure func(err error, recoverable bool)
}

// Transport is the full-duplex framed channel the Coordinator drives.
// Send operations are boolean-returning; they never throw.
type Transport interface {
	Connect(ctx context.Context, handlers Handlers) error
	SendText(data []byte) bool
	SendBinary(data []byte) bool
	Close(code int, reason string) error
}

// Coordinator owns the Filter, Driver, and Renderer for one session,
// driving the handshake and reconnect state machine described by State.
type Coordinator struct {
	mu sync.Mutex

	cfg       *config.Config
	transport Transport
	filter    *timesync.Filter
	driver    *timesync.Driver
	render    *renderer.Renderer
	logger    *zap.Logger
	events    chan Event

	state              State
	attempt            int
	handshakeCompleted bool
	reconnectCancel    context.CancelFunc

	decoder codec.Decoder

	artwork *protocol.ArtworkReassembler
}

// New constructs a Coordinator. events is the single channel on which the
// host subscribes to session notifications.
func New(cfg *config.Config, transport Transport, filter *timesync.Filter, driver *timesync.Driver, render *renderer.Renderer, logger *zap.Logger) *Coordinator {
	artwork, _ := protocol.NewArtworkReassembler(64)
	return &Coordinator{
		cfg:       cfg,
		transport: transport,
		filter:    filter,
		driver:    driver,
		render:    render,
		logger:    logger,
		events:    make(chan Event, 16),
		state:     Disconnected,
		artwork:   artwork,
	}
}

// Events returns the channel on which the host receives session events.
func (c *Coordinator) Events() <-chan Event { return c.events }

// State returns the current state machine node.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect begins the initial connection attempt.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.setState(Connecting)
	return c.dial(ctx)
}

func (c *Coordinator) dial(ctx context.Context) error {
	return c.transport.Connect(ctx, Handlers{
		OnOpen:    c.onOpen,
		OnText:    c.onText,
		OnBinary:  c.onBinary,
		OnClosing: c.onClosing,
		OnClosed:  c.onClosed,
		OnFailure: c.onFailure,
	})
}

func (c *Coordinator) onOpen() {
	c.setState(HandshakeSent)
	hello := protocol.ClientHelloPayload{
		ClientID:        c.cfg.Player.PlayerID,
		Name:            c.cfg.Player.DeviceName,
		ProtocolVersion: protocolVersion,
		Roles:           []string{"player"},
		PlayerSupport:   protocol.PlayerSupport{SupportedFormats: advertisedFormats(c.cfg.Player.PreferredCodec)},
	}
	data, err := protocol.BuildClientHello(hello)
	if err != nil {
		c.logError("build client/hello", err)
		return
	}
	c.transport.SendText(data)
}

// advertisedFormats orders supported_formats so preferred is first; the
// server selects the first format it can produce, so ordering is a
// protocol contract rather than a UI hint. Both stereo and mono variants
// of each codec are advertised.
func advertisedFormats(preferred string) []protocol.AudioFormat {
	all := map[string]protocol.AudioFormat{
		config.CodecPCM:  {Codec: config.CodecPCM, SampleRate: 48_000, Channels: 2, BitDepth: 16},
		config.CodecFLAC: {Codec: config.CodecFLAC, SampleRate: 48_000, Channels: 2, BitDepth: 16},
		config.CodecOpus: {Codec: config.CodecOpus, SampleRate: 48_000, Channels: 2, BitDepth: 16},
	}
	order := []string{config.CodecPCM, config.CodecFLAC, config.CodecOpus}
	ordered := make([]string, 0, len(order))
	ordered = append(ordered, preferred)
	for _, c := range order {
		if c != preferred {
			ordered = append(ordered, c)
		}
	}

	formats := make([]protocol.AudioFormat, 0, len(ordered)*2)
	for _, codec := range ordered {
		f := all[codec]
		stereo := f
		stereo.Channels = 2
		mono := f
		mono.Channels = 1
		formats = append(formats, stereo, mono)
	}
	return formats
}

func (c *Coordinator) onText(data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		c.logError("parse envelope", err)
		return
	}

	switch env.Type {
	case protocol.TypeServerHello:
		c.handleServerHello(env.Payload)
	case protocol.TypeServerTime:
		c.handleServerTime(env.Payload)
	case protocol.TypeStreamStart:
		c.handleStreamStart(env.Payload)
	case protocol.TypeStreamClear:
		c.handleStreamClear()
	case protocol.TypeClientSyncOffset:
		c.handleSyncOffset(env.Payload)
	case protocol.TypeServerState, protocol.TypeServerCommand, protocol.TypeGroupUpdate:
		// Recognized but not yet acted on by the core streaming engine;
		// the host may subscribe to these via a future event if needed.
	default:
		if c.logger != nil {
			c.logger.Debug("unknown message type", zap.String("type", env.Type))
		}
	}
}

func (c *Coordinator) handleServerHello(payload json.RawMessage) {
	hello, err := protocol.ParseServerHello(payload)
	if err != nil {
		c.logError("parse server/hello", err)
	} else if c.logger != nil {
		c.logger.Debug("server/hello active_roles", zap.Strings("active_roles", hello.ActiveRoles))
	}

	c.mu.Lock()
	first := c.state != Ready
	wasReconnect := c.handshakeCompleted
	c.handshakeCompleted = true
	c.attempt = 0
	c.mu.Unlock()

	c.setState(Ready)
	c.driver.Start()

	if wasReconnect {
		c.filter.Thaw()
		c.emit(Reconnected{})
	} else if first {
		c.emit(Connected{})
	}
}

func (c *Coordinator) handleServerTime(payload json.RawMessage) {
	p, err := protocol.ParseServerTime(payload)
	if err != nil {
		c.logError("parse server/time", err)
		return
	}
	now := timesync.SystemClock{}.NowUs()
	offset := ((p.ServerReceiveUs - p.ClientTransmitUs) + (p.ServerTransmitUs - now)) / 2
	rtt := (now - p.ClientTransmitUs) - (p.ServerTransmitUs - p.ServerReceiveUs)
	maxError := rtt / 2
	if maxError < 1 {
		maxError = 1
	}
	c.driver.OnServerTime(timesync.Measurement{
		OffsetUs:     offset,
		MaxErrorUs:   maxError,
		ClientTimeUs: p.ClientTransmitUs,
		RTTUs:        rtt,
	})
}

func (c *Coordinator) handleStreamStart(payload json.RawMessage) {
	p, err := protocol.ParseStreamStart(payload)
	if err != nil {
		c.logError("parse stream/start", err)
		return
	}

	header, err := decodeCodecHeader(p.CodecHeader)
	if err != nil {
		c.logError("decode codec_header", err)
		return
	}
	decoder, err := codec.NewDecoder(p.Codec, p.SampleRate, p.Channels)
	if err != nil {
		c.logError("construct codec decoder", err)
		return
	}
	if err := decoder.Reset(header); err != nil {
		c.logError("reset codec decoder", err)
		return
	}

	cfg := renderer.StreamConfig{
		Codec:      p.Codec,
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
		BitDepth:   p.BitDepth,
	}
	if err := c.render.Configure(cfg, c.cfg.BufferCapacity()); err != nil {
		c.logError("configure renderer", err)
		return
	}

	c.mu.Lock()
	c.decoder = decoder
	c.mu.Unlock()

	c.render.Start()
}

// handleStreamClear flushes (but does not replace) the active decoder so
// the codec session survives a mid-stream clear, and discards the
// renderer's queued chunks.
func (c *Coordinator) handleStreamClear() {
	c.mu.Lock()
	decoder := c.decoder
	c.mu.Unlock()
	if decoder != nil {
		if err := decoder.Flush(); err != nil {
			c.logError("flush codec decoder", err)
		}
	}
	c.render.Clear()
}

// decodeCodecHeader base64-decodes the optional codec_header field; an
// empty field decodes to a nil header, which PCM and Opus decoders accept
// and FLAC rejects (it requires STREAMINFO).
func decodeCodecHeader(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func (c *Coordinator) handleSyncOffset(payload json.RawMessage) {
	p, err := protocol.ParseSyncOffset(payload)
	if err != nil {
		c.logError("parse sync_offset", err)
		return
	}
	c.filter.SetStaticDelay(int64(p.StaticDelayMs) * 1000)
}

func (c *Coordinator) onBinary(data []byte) {
	frame, err := protocol.ParseBinaryFrame(data)
	if err != nil {
		return // malformed frames are logged-and-dropped at the caller; never propagate
	}
	switch {
	case frame.Tag == protocol.TagAudioChunk:
		c.handleAudioChunk(frame)
	case protocol.IsArtworkTag(frame.Tag):
		c.artwork.Add(frame)
	case frame.Tag == protocol.TagVisualizer:
		// Visualizer frames are outside the core streaming engine's scope;
		// dropped here until a host surface consumes them.
	}
}

// handleAudioChunk decodes one compressed audio frame through the active
// stream's codec before handing interleaved PCM to the renderer. A frame
// that arrives before stream/start has set a decoder is dropped: there is
// no declared format to interpret it against yet.
func (c *Coordinator) handleAudioChunk(frame protocol.BinaryFrame) {
	c.mu.Lock()
	decoder := c.decoder
	c.mu.Unlock()
	if decoder == nil {
		return
	}
	pcmBytes, err := codec.DecodeWithRetry(decoder, frame.Payload, codecDecodeMaxRetries)
	if err != nil {
		c.logError("decode audio chunk", err)
		return
	}
	c.render.Enqueue(frame.ServerTimeUs, pcmBytes)
}

func (c *Coordinator) onClosing(code int, reason string) {
	if c.logger != nil {
		c.logger.Info("transport closing", zap.Int("code", code), zap.String("reason", reason))
	}
}

func (c *Coordinator) onClosed(code int, reason string) {
	if code == closeCodeNormal {
		c.setState(Disconnected)
		c.emit(DisconnectedEvent{})
		return
	}
	c.beginReconnect()
}

func (c *Coordinator) onFailure(err error, recoverable bool) {
	if !recoverable {
		c.fail(err)
		return
	}
	c.beginReconnect()
}

// beginReconnect is permitted only once the handshake has completed at
// least once during the session.
func (c *Coordinator) beginReconnect() {
	c.mu.Lock()
	if !c.handshakeCompleted {
		c.mu.Unlock()
		c.fail(fmt.Errorf("session: transport failure before handshake completed"))
		return
	}
	c.mu.Unlock()

	go c.reconnectLoop()
}

// reconnectLoop is the single long-lived task with an internal attempt
// loop; cancellation cancels exactly one handle (the current attempt's
// backoff wait), never a chain of self-scheduling tasks. The dial itself
// always runs against a fresh context: a network-available skip must not
// leave the connect attempt racing an already-cancelled context, and must
// not prevent later attempts from backing off normally.
func (c *Coordinator) reconnectLoop() {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		c.mu.Lock()
		c.attempt = attempt
		waitCtx, cancel := context.WithCancel(context.Background())
		c.reconnectCancel = cancel
		c.mu.Unlock()

		c.setState(Reconnecting)
		if attempt == 1 {
			c.filter.Freeze()
		}
		c.emit(ReconnectingEvent{Attempt: attempt, Name: c.cfg.Player.DeviceName})

		c.waitBackoff(waitCtx, backoffDelay(attempt))
		cancel()

		if err := c.dial(context.Background()); err == nil {
			return // onOpen/handleServerHello will drive the rest of the transition
		}
	}
	c.fail(fmt.Errorf("session: reconnect attempts exhausted after %d tries", maxReconnectAttempts))
}

// NetworkAvailable cancels the current attempt's in-flight backoff delay
// and retries immediately, with the attempt counter clamped to >= 1 so a
// freeze taken on attempt 1 is preserved rather than re-triggered.
func (c *Coordinator) NetworkAvailable() {
	c.mu.Lock()
	cancel := c.reconnectCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) waitBackoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		// network-available: skip the remainder of this attempt's delay.
	}
}

func backoffDelay(attempt int) time.Duration {
	ms := backoffBaseMs << (attempt - 1)
	if ms > backoffCapMs {
		ms = backoffCapMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Coordinator) fail(err error) {
	c.filter.ResetAndDiscard()
	c.setState(Failed)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.emit(ErrorEvent{Message: msg})
}

// Disconnect initiates a user-requested close; the peer's 1000 close code
// will route through onClosed without triggering a reconnect.
func (c *Coordinator) Disconnect(reason string) {
	c.setState(Closing)
	data, err := protocol.BuildClientGoodbye(reason)
	if err == nil {
		c.transport.SendText(data)
	}
	c.driver.Stop()
	c.render.Stop()
	_ = c.transport.Close(closeCodeNormal, reason)
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	default:
		if c.logger != nil {
			c.logger.Warn("session event dropped, channel full")
		}
	}
}

func (c *Coordinator) logError(action string, err error) {
	if c.logger != nil {
		c.logger.Warn(action+" failed", zap.Error(err))
	}
}
