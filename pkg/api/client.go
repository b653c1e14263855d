// Package api implements the widget-facing backend contract: config fetch,
// conversation start, message history, and message send. The duplex channel
// lives in pkg/transport; this client only derives its endpoint URL.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/omnisupport/chatkit/pkg/wire"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Config configures the backend client.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.omnisupport.example".
	BaseURL string
	// Tenant is the tenant slug the widget is embedded for.
	Tenant string
	// HTTPClient overrides the default client. Optional.
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is not provided.
	Timeout time.Duration
}

// Client talks to the widget backend. Safe for concurrent use.
type Client struct {
	baseURL string
	tenant  string
	hc      *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api client: empty base URL")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, errors.Wrap(err, "api client: invalid base URL")
	}
	tenant := strings.TrimSpace(cfg.Tenant)
	if tenant == "" {
		return nil, errors.New("api client: empty tenant slug")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, tenant: tenant, hc: hc}, nil
}

// RequestError is returned for non-2xx backend responses.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// Tenant returns the tenant slug the client was built for.
func (c *Client) Tenant() string { return c.tenant }

// FetchConfig loads the tenant's widget configuration. Called once at init.
func (c *Client) FetchConfig(ctx context.Context) (wire.WidgetConfig, error) {
	var out wire.WidgetConfig
	err := c.do(ctx, http.MethodGet, "/api/widget/config/"+url.PathEscape(c.tenant), nil, &out)
	return out, err
}

type StartConversationRequest struct {
	VisitorID      string         `json:"visitor_id"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	InitialMessage string         `json:"initial_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type StartConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	CustomerID     string `json:"customer_id"`
}

// StartConversation creates a new conversation for the visitor.
func (c *Client) StartConversation(ctx context.Context, req StartConversationRequest) (StartConversationResponse, error) {
	var out StartConversationResponse
	if strings.TrimSpace(req.VisitorID) == "" {
		return out, errors.New("start conversation: empty visitor id")
	}
	path := "/api/widget/conversations?tenant_slug=" + url.QueryEscape(c.tenant)
	err := c.do(ctx, http.MethodPost, path, req, &out)
	return out, err
}

type listMessagesResponse struct {
	Messages []wire.Message `json:"messages"`
}

// ListMessages returns the conversation's full ordered message history.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]wire.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("list messages: empty conversation id")
	}
	var out listMessagesResponse
	err := c.do(ctx, http.MethodGet, "/api/widget/conversations/"+url.PathEscape(conversationID)+"/messages", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type SendMessageResponse struct {
	MessageID string    `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SendMessage delivers a visitor text message and returns the server-issued
// id and authoritative timestamp.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (SendMessageResponse, error) {
	var out SendMessageResponse
	if strings.TrimSpace(conversationID) == "" {
		return out, errors.New("send message: empty conversation id")
	}
	req := sendMessageRequest{Content: text, ContentType: string(wire.ContentText)}
	err := c.do(ctx, http.MethodPost, "/api/widget/conversations/"+url.PathEscape(conversationID)+"/messages", req, &out)
	return out, err
}

// WSEndpoint derives the duplex channel URL for a conversation from the
// client's base URL (http(s) becomes ws(s)).
func (c *Client) WSEndpoint(conversationID string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/widget/conversations/" + url.PathEscape(conversationID) + "/ws"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}
