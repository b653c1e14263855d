// Package transport owns the duplex channel between the widget and the
// backend: a websocket manager with automatic reconnection, and a polling
// fallback for environments where a duplex connection cannot be established.
package transport

import (
	"context"

	"github.com/omnisupport/chatkit/pkg/wire"
)

// State is the connection lifecycle state, one per conversation.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// StateChange is emitted on every lifecycle transition. Terminal marks the
// reconnect budget being exhausted; no further automatic attempts happen
// until Connect is called again.
type StateChange struct {
	State    State
	Attempt  int
	Err      error
	Terminal bool
}

// Transport is the duplex channel contract the session engine runs on.
// Implementations deliver inbound protocol events on Events and lifecycle
// transitions on States; both channels stay valid across reconnects.
type Transport interface {
	// Connect establishes the channel for a conversation. No-op when already
	// connecting or open for the same conversation id.
	Connect(ctx context.Context, conversationID string) error
	// Disconnect stops reconnection, cancels pending timers and closes the
	// live connection.
	Disconnect()
	// Send delivers an outbound envelope. Silently dropped when the channel
	// is not open; guaranteed delivery goes through the synchronizer's
	// optimistic-send path instead.
	Send(ev wire.Event) error
	// SendTyping wraps Send with the typed presence envelope.
	SendTyping(isTyping bool) error
	Events() <-chan wire.Event
	States() <-chan StateChange
}
