package widget

import "github.com/omnisupport/chatkit/pkg/wire"

// Bus event names consumed through Widget.On. Payloads are JSON encodings of
// the types below; state_changed carries the full Snapshot.
const (
	EventStateChanged       = "state_changed"
	EventMessageReceived    = "message_received"
	EventMessageSent        = "message_sent"
	EventSendFailed         = "send_failed"
	EventAgentTyping        = "agent_typing"
	EventConnection         = "connection"
	EventReconnectFailed    = "reconnect_failed"
	EventConversationClosed = "conversation_closed"
	EventOperatorJoined     = "operator_joined"
	EventError              = "error"
)

// MessagePayload accompanies message_received and message_sent.
type MessagePayload struct {
	Message wire.Message `json:"message"`
}

// ErrorPayload accompanies error and send_failed.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ConnectionPayload accompanies connection and reconnect_failed.
type ConnectionPayload struct {
	State    string `json:"state"`
	Attempt  int    `json:"attempt,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

// TypingPayload accompanies agent_typing.
type TypingPayload struct {
	IsTyping bool `json:"is_typing"`
}

// OperatorPayload accompanies operator_joined.
type OperatorPayload struct {
	UserID string `json:"user_id,omitempty"`
}
