package wire

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// EventType tags a frame on the duplex channel.
type EventType string

const (
	// Inbound events from the backend.
	EventMessage            EventType = "message"
	EventTypingStart        EventType = "typing_start"
	EventTypingStop         EventType = "typing_stop"
	EventConversationClosed EventType = "conversation_closed"
	EventOperatorJoined     EventType = "operator_joined"

	// EventNewMessage is synthesized by the transport layer alongside the raw
	// "message" frame and always carries a fully-typed Message.
	EventNewMessage EventType = "new_message"

	// Outbound envelopes from the widget.
	EventTyping EventType = "typing"
	EventPing   EventType = "ping"
)

// Event is the tagged envelope exchanged on the duplex channel. Optional
// fields are populated depending on Type.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
}

// Known reports whether the event type is part of the protocol vocabulary.
// Unknown types are not an error on the wire; callers typically ignore them.
func (e Event) Known() bool {
	switch e.Type {
	case EventMessage, EventTypingStart, EventTypingStop,
		EventConversationClosed, EventOperatorJoined,
		EventNewMessage, EventTyping, EventPing:
		return true
	}
	return false
}

// DecodeEvent parses a single frame into a tagged event. A frame without a
// type, or a message frame without a message payload, is malformed.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, errors.Wrap(err, "decode event frame")
	}
	if ev.Type == "" {
		return Event{}, errors.New("event frame missing type")
	}
	if ev.Type == EventMessage && ev.Message == nil {
		return Event{}, errors.New("message event missing message payload")
	}
	return ev, nil
}

// TypingEnvelope builds the outbound presence signal.
func TypingEnvelope(isTyping bool) Event {
	return Event{Type: EventTyping, IsTyping: isTyping}
}

// PingEnvelope builds the outbound keepalive frame.
func PingEnvelope() Event {
	return Event{Type: EventPing}
}
