package widget

import (
	"github.com/omnisupport/chatkit/pkg/transport"
	"github.com/omnisupport/chatkit/pkg/wire"
)

// View is the widget's current surface.
type View string

const (
	ViewClosed  View = "closed"
	ViewPrechat View = "prechat"
	ViewChat    View = "chat"
)

// Snapshot is the composite session state observed by subscribers. Values
// handed out are deep copies; mutating one never affects the engine.
type Snapshot struct {
	Visitor      wire.Visitor       `json:"visitor"`
	Conversation *wire.Conversation `json:"conversation,omitempty"`
	Messages     []wire.Message     `json:"messages"`
	Config       wire.WidgetConfig  `json:"config"`
	ConfigLoaded bool               `json:"config_loaded"`
	Connection   transport.State    `json:"connection"`
	View         View               `json:"view"`
	AgentTyping  bool               `json:"agent_typing"`
	Sending      bool               `json:"is_sending"`
	Loading      bool               `json:"is_loading"`
	LastError    string             `json:"last_error,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Conversation != nil {
		c := *s.Conversation
		out.Conversation = &c
	}
	out.Messages = make([]wire.Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	if s.Visitor.Metadata != nil {
		md := make(map[string]any, len(s.Visitor.Metadata))
		for k, v := range s.Visitor.Metadata {
			md[k] = v
		}
		out.Visitor.Metadata = md
	}
	return out
}
