package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Tenant: "acme"})
	require.NoError(t, err)
	return c, srv
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "", Tenant: "acme"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost:8080", Tenant: " "})
	require.Error(t, err)
}

func TestFetchConfig(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/widget/config/acme", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tenant_id":    "t-1",
			"tenant_name":  "Acme",
			"require_name": true,
			"is_online":    true,
		})
	}))

	cfg, err := c.FetchConfig(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Acme", cfg.TenantName)
	require.True(t, cfg.RequireName)
	require.True(t, cfg.IsOnline)
}

func TestStartConversation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/widget/conversations", r.URL.Path)
		require.Equal(t, "acme", r.URL.Query().Get("tenant_slug"))

		var req StartConversationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "vis-1", req.VisitorID)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"conversation_id": "conv-1",
			"customer_id":     "cust-1",
		})
	}))

	resp, err := c.StartConversation(context.Background(), StartConversationRequest{VisitorID: "vis-1"})
	require.NoError(t, err)
	require.Equal(t, "conv-1", resp.ConversationID)
	require.Equal(t, "cust-1", resp.CustomerID)
}

func TestStartConversation_RequiresVisitorID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	_, err := c.StartConversation(context.Background(), StartConversationRequest{})
	require.Error(t, err)
}

func TestListMessages(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/widget/conversations/conv-1/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": "m-1", "sender_type": "visitor", "content_type": "text", "content": map[string]string{"text": "hi"}},
				{"id": "m-2", "sender_type": "agent", "content_type": "text", "content": map[string]string{"text": "hello"}},
			},
		})
	}))

	msgs, err := c.ListMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m-1", msgs[0].ID)
	require.Equal(t, "hello", msgs[1].Content.Text)
}

func TestNon2xxYieldsRequestError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail": "conversation not found"}`, http.StatusNotFound)
	}))

	_, err := c.ListMessages(context.Background(), "missing")
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	require.Equal(t, http.StatusNotFound, reqErr.Status)
	require.Contains(t, reqErr.Body, "conversation not found")
}

func TestContextCancellation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchConfig(ctx)
	require.Error(t, err)
}

func TestWSEndpoint(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.com/", Tenant: "acme"})
	require.NoError(t, err)
	require.Equal(t, "wss://api.example.com/api/widget/conversations/conv-1/ws", c.WSEndpoint("conv-1"))

	c, err = New(Config{BaseURL: "http://localhost:9000", Tenant: "acme"})
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:9000/api/widget/conversations/conv-1/ws", c.WSEndpoint("conv-1"))
}
