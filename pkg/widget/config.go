package widget

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/omnisupport/chatkit/pkg/api"
	"github.com/omnisupport/chatkit/pkg/store"
	"github.com/omnisupport/chatkit/pkg/transport"
	"github.com/omnisupport/chatkit/pkg/wire"
)

// Backend is the request/response half of the backend contract. Satisfied by
// *api.Client; tests substitute stubs.
type Backend interface {
	FetchConfig(ctx context.Context) (wire.WidgetConfig, error)
	StartConversation(ctx context.Context, req api.StartConversationRequest) (api.StartConversationResponse, error)
	ListMessages(ctx context.Context, conversationID string) ([]wire.Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (api.SendMessageResponse, error)
}

var _ Backend = (*api.Client)(nil)

// Config configures the session engine.
type Config struct {
	// Backend is the request/response client. Required.
	Backend Backend
	// Transport carries the duplex channel. When nil and Backend is the api
	// client, a websocket manager is built from its endpoints. The polling
	// fallback is selected by passing a transport.Poller here explicitly.
	Transport transport.Transport
	// Store persists the session across reloads. Nil degrades to memory-only.
	Store *store.SessionStore
	// TypingDebounce is the quiet period before typing_stop. Default 2s.
	TypingDebounce time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

func (cfg *Config) applyDefaults() error {
	if cfg.Backend == nil {
		return errors.New("widget: backend client is required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewSessionStore(nil)
	}
	if cfg.TypingDebounce <= 0 {
		cfg.TypingDebounce = DefaultTypingDebounce
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Transport == nil {
		client, ok := cfg.Backend.(*api.Client)
		if !ok {
			return errors.New("widget: transport is required when backend is not the api client")
		}
		mgr, err := transport.NewManager(transport.ManagerConfig{Endpoint: client.WSEndpoint})
		if err != nil {
			return errors.Wrap(err, "widget: build websocket transport")
		}
		cfg.Transport = mgr
	}
	return nil
}
