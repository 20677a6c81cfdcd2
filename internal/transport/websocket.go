// Package transport implements the full-duplex WebSocket frame channel
// the session coordinator drives, grounded on the connection/read-loop/
// write-goroutine split used by the reference server implementation of
// this wire protocol.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aurastream/aurastream-client/internal/session"
)

const (
	defaultPath        = "/sendspin"
	defaultPort        = 8927
	writeWait          = 10 * time.Second
	handshakeTimeout   = 10 * time.Second
	outboundQueueDepth = 64
)

// Config describes the endpoint a WebSocket transport connects to.
type Config struct {
	Host string
	Port int
	Path string
	TLS  bool
}

// URL builds the ws:// or wss:// endpoint URL from the host, port, path
// and TLS flag, filling in the default port and path when unset. Rewriting
// an http(s):// URL is done separately, by RewriteScheme.
func (c Config) URL() string {
	host := c.Host
	port := c.Port
	if port == 0 {
		port = defaultPort
	}
	path := c.Path
	if path == "" {
		path = defaultPath
	}
	scheme := "ws"
	if c.TLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port), Path: path}
	return u.String()
}

// RewriteScheme converts an http(s):// URL to its ws(s):// equivalent,
// leaving ws(s):// URLs untouched.
func RewriteScheme(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}

// WebSocketTransport implements session.Transport over gorilla/websocket,
// with a dedicated write goroutine serializing sends against the
// connection the read loop owns.
type WebSocketTransport struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	outbox  chan wireMessage
	closeCh chan struct{}
}

type wireMessage struct {
	messageType int
	data        []byte
}

// New constructs a WebSocketTransport for the given endpoint.
func New(cfg Config, logger *zap.Logger) *WebSocketTransport {
	return &WebSocketTransport{cfg: cfg, logger: logger}
}

// Connect dials the endpoint and launches the read loop and write
// goroutine; handlers are invoked from the read loop.
func (t *WebSocketTransport) Connect(ctx context.Context, handlers session.Handlers) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL(), nil)
	if err != nil {
		return fmt.Errorf("transport: dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.outbox = make(chan wireMessage, outboundQueueDepth)
	t.closeCh = make(chan struct{})
	outbox := t.outbox
	closeCh := t.closeCh
	t.mu.Unlock()

	conn.SetCloseHandler(func(code int, text string) error {
		handlers.OnClosing(code, text)
		return nil
	})

	go t.writeLoop(conn, outbox, closeCh)
	go t.readLoop(conn, closeCh, handlers)

	handlers.OnOpen()
	return nil
}

func (t *WebSocketTransport) writeLoop(conn *websocket.Conn, outbox <-chan wireMessage, closeCh <-chan struct{}) {
	for {
		select {
		case msg := <-outbox:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(msg.messageType, msg.data); err != nil {
				if t.logger != nil {
					t.logger.Warn("transport write failed", zap.Error(err))
				}
				return
			}
		case <-closeCh:
			return
		}
	}
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, closeCh chan struct{}, handlers session.Handlers) {
	defer close(closeCh)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				handlers.OnClosed(ce.Code, ce.Text)
				return
			}
			handlers.OnFailure(err, session.IsRecoverable(err))
			return
		}
		switch messageType {
		case websocket.TextMessage:
			handlers.OnText(data)
		case websocket.BinaryMessage:
			handlers.OnBinary(data)
		}
	}
}

// SendText enqueues a text frame; returns false if the transport is not
// connected or the outbound queue is full.
func (t *WebSocketTransport) SendText(data []byte) bool {
	return t.send(websocket.TextMessage, data)
}

// SendBinary enqueues a binary frame.
func (t *WebSocketTransport) SendBinary(data []byte) bool {
	return t.send(websocket.BinaryMessage, data)
}

func (t *WebSocketTransport) send(messageType int, data []byte) bool {
	t.mu.Lock()
	outbox := t.outbox
	t.mu.Unlock()
	if outbox == nil {
		return false
	}
	select {
	case outbox <- wireMessage{messageType: messageType, data: data}:
		return true
	default:
		return false
	}
}

// Close sends a WebSocket close frame with the given code and reason.
func (t *WebSocketTransport) Close(code int, reason string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	return conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
