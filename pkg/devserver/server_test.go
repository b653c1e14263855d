package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omnisupport/chatkit/pkg/api"
	"github.com/omnisupport/chatkit/pkg/transport"
	"github.com/omnisupport/chatkit/pkg/widget"
	"github.com/omnisupport/chatkit/pkg/wire"
)

func newTestBackend(t *testing.T, cfg Config) (*httptest.Server, *api.Client) {
	t.Helper()
	ts := httptest.NewServer(NewServer(cfg).Handler())
	t.Cleanup(ts.Close)
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "dev"
	}
	client, err := api.New(api.Config{BaseURL: ts.URL, Tenant: tenant})
	require.NoError(t, err)
	return ts, client
}

func TestServer_ConfigEndpoint(t *testing.T) {
	_, client := newTestBackend(t, Config{WelcomeMessage: "Hi there"})

	cfg, err := client.FetchConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.TenantID)
	require.Equal(t, "Hi there", cfg.WelcomeMessage)
	require.True(t, cfg.IsOnline)
}

func TestServer_UnknownTenantRejected(t *testing.T) {
	ts, _ := newTestBackend(t, Config{})
	client, err := api.New(api.Config{BaseURL: ts.URL, Tenant: "other"})
	require.NoError(t, err)

	_, err = client.FetchConfig(context.Background())
	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusNotFound, reqErr.Status)
}

func TestServer_ConversationLifecycle(t *testing.T) {
	_, client := newTestBackend(t, Config{})
	ctx := context.Background()

	started, err := client.StartConversation(ctx, api.StartConversationRequest{
		VisitorID:      "vis-1",
		InitialMessage: "opening question",
	})
	require.NoError(t, err)
	require.NotEmpty(t, started.ConversationID)
	require.NotEmpty(t, started.CustomerID)

	sent, err := client.SendMessage(ctx, started.ConversationID, "follow-up")
	require.NoError(t, err)
	require.NotEmpty(t, sent.MessageID)
	require.False(t, sent.CreatedAt.IsZero())

	msgs, err := client.ListMessages(ctx, started.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "opening question", msgs[0].Content.Text)
	require.Equal(t, "follow-up", msgs[1].Content.Text)
	require.Equal(t, wire.SenderVisitor, msgs[0].SenderType)
}

func TestServer_UnknownConversationRejected(t *testing.T) {
	_, client := newTestBackend(t, Config{})

	_, err := client.ListMessages(context.Background(), "conv-missing")
	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusNotFound, reqErr.Status)
}

// The full stack over a real websocket: the engine sends a message, the
// server echoes it on the duplex channel, the bot answers, and the local
// sequence ends up with exactly one copy of each.
func TestServer_WidgetRoundTrip(t *testing.T) {
	_, client := newTestBackend(t, Config{AutoReply: true, ReplyDelay: 50 * time.Millisecond})

	mgr, err := transport.NewManager(transport.ManagerConfig{Endpoint: client.WSEndpoint})
	require.NoError(t, err)

	w, err := widget.NewWidget(widget.Config{Backend: client, Transport: mgr})
	require.NoError(t, err)
	t.Cleanup(w.Shutdown)

	ctx := context.Background()
	require.NoError(t, w.Init(ctx))
	require.NoError(t, w.Send(ctx, "Hello"))

	require.Eventually(t, func() bool {
		return w.Snapshot().Connection == transport.StateOpen
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		msgs := w.Snapshot().Messages
		return len(msgs) == 2 && msgs[1].SenderType == wire.SenderBot
	}, 5*time.Second, 10*time.Millisecond)

	snap := w.Snapshot()
	require.Equal(t, "Hello", snap.Messages[0].Content.Text)
	require.Equal(t, "You said: Hello", snap.Messages[1].Content.Text)
	for _, m := range snap.Messages {
		require.False(t, m.Pending())
	}
	require.NotEqual(t, snap.Messages[0].ID, snap.Messages[1].ID)
}

// A second subscriber on the same conversation sees the visitor's message
// echoed, which is how an agent console would observe the conversation.
func TestServer_BroadcastReachesAllSubscribers(t *testing.T) {
	_, client := newTestBackend(t, Config{})
	ctx := context.Background()

	started, err := client.StartConversation(ctx, api.StartConversationRequest{VisitorID: "vis-1"})
	require.NoError(t, err)

	mgr, err := transport.NewManager(transport.ManagerConfig{Endpoint: client.WSEndpoint})
	require.NoError(t, err)
	defer mgr.Disconnect()
	require.NoError(t, mgr.Connect(ctx, started.ConversationID))

	require.Eventually(t, func() bool {
		return mgr.State() == transport.StateOpen
	}, 5*time.Second, 10*time.Millisecond)

	_, err = client.SendMessage(ctx, started.ConversationID, "observed")
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-mgr.Events():
			if ev.Type == wire.EventNewMessage && ev.Message != nil && ev.Message.Content.Text == "observed" {
				return
			}
		case <-deadline:
			t.Fatal("duplex echo of the sent message never arrived")
		}
	}
}
