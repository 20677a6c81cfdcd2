// Package session implements the handshake / reconnect state machine that
// owns the Filter, Driver, Protocol Handler, and Renderer for one streaming
// session, grounded on the same event-callback-over-channel shape the
// teacher's realtime provider uses for its server-event dispatch.
package session

import "fmt"

// State is one node of the session state machine.
type State int

const (
	// Disconnected is the initial state and the state reached after a
	// normal (code 1000) close.
	Disconnected State = iota
	// Connecting is entered on connect() before the transport opens.
	Connecting
	// HandshakeSent is entered once the transport is open and client/hello
	// has been sent, awaiting server/hello.
	HandshakeSent
	// Ready is entered on receipt of server/hello.
	Ready
	// Reconnecting is entered after a transport error, carrying the
	// current attempt number.
	Reconnecting
	// Failed is entered once the reconnect attempt budget is exhausted, on a
	// non-recoverable transport failure, or on a transport failure before
	// the first handshake completed. No transition leaves Failed.
	Failed
	// Closing is entered on a user-initiated disconnect.
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case HandshakeSent:
		return "HandshakeSent"
	case Ready:
		return "Ready"
	case Reconnecting:
		return "Reconnecting"
	case Failed:
		return "Failed"
	case Closing:
		return "Closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event is the sum type of outward notifications the Coordinator emits,
// at most one per state transition, delivered on a single channel so the
// host can subscribe without exposing the Coordinator's internals.
type Event interface{ isEvent() }

// Connected is emitted the first time Ready is entered in a session.
type Connected struct{}

// ReconnectingEvent is emitted on entering the Reconnecting(n) state.
type ReconnectingEvent struct {
	Attempt int
	Name    string
}

// Reconnected is emitted when Ready is re-entered after a reconnect.
type Reconnected struct{}

// DisconnectedEvent is emitted on a normal close.
type DisconnectedEvent struct{}

// ErrorEvent is emitted on entering Failed.
type ErrorEvent struct {
	Message string
}

func (Connected) isEvent()         {}
func (ReconnectingEvent) isEvent() {}
func (Reconnected) isEvent()       {}
func (DisconnectedEvent) isEvent() {}
func (ErrorEvent) isEvent()        {}
