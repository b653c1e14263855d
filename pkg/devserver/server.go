// Package devserver is a self-contained backend for local widget development.
// It implements the full widget contract, config fetch, conversation start,
// message history, message send and the duplex channel, against an in-memory
// store, with an optional bot that answers every visitor message.
package devserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/omnisupport/chatkit/pkg/wire"
)

const defaultReplyDelay = 600 * time.Millisecond

// Config configures the development backend.
type Config struct {
	// Tenant is the single slug the server answers for. Default "dev".
	Tenant string
	// AutoReply makes a bot answer every visitor message after ReplyDelay.
	AutoReply bool
	// ReplyDelay between a visitor message and the bot answer. Default 600ms.
	ReplyDelay time.Duration
	// WelcomeMessage is surfaced through the widget config endpoint.
	WelcomeMessage string
}

// Server serves the widget backend contract from memory. State does not
// survive a restart; that is the point of a dev server.
type Server struct {
	cfg      Config
	e        *echo.Echo
	upgrader websocket.Upgrader

	mu    sync.Mutex
	convs map[string]*conversation
}

type conversation struct {
	id         string
	customerID string

	mu       sync.Mutex
	messages []wire.Message
	subs     map[*websocket.Conn]struct{}
}

func NewServer(cfg Config) *Server {
	if strings.TrimSpace(cfg.Tenant) == "" {
		cfg.Tenant = "dev"
	}
	if cfg.ReplyDelay <= 0 {
		cfg.ReplyDelay = defaultReplyDelay
	}
	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			// Host pages embed the widget from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		convs: map[string]*conversation{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/api/widget/config/:tenant", s.handleConfig)
	e.POST("/api/widget/conversations", s.handleStartConversation)
	e.GET("/api/widget/conversations/:id/messages", s.handleListMessages)
	e.POST("/api/widget/conversations/:id/messages", s.handleSendMessage)
	e.GET("/api/widget/conversations/:id/ws", s.handleWS)

	s.e = e
	return s
}

// Handler exposes the routes for embedding in another server or a test.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves on the given address until Shutdown.
func (s *Server) Start(addr string) error { return s.e.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func (s *Server) handleConfig(c echo.Context) error {
	tenant := c.Param("tenant")
	if tenant != s.cfg.Tenant {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
	}
	return c.JSON(http.StatusOK, wire.WidgetConfig{
		TenantID:        tenant,
		TenantName:      "Dev Tenant",
		PrimaryColor:    "#4f46e5",
		TextColor:       "#ffffff",
		BackgroundColor: "#ffffff",
		Position:        "bottom-right",
		WelcomeMessage:  s.cfg.WelcomeMessage,
		PlaceholderText: "Type a message...",
		ShowBranding:    true,
		IsOnline:        true,
	})
}

type startConversationRequest struct {
	VisitorID      string         `json:"visitor_id"`
	Name           string         `json:"name,omitempty"`
	Email          string         `json:"email,omitempty"`
	InitialMessage string         `json:"initial_message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleStartConversation(c echo.Context) error {
	if c.QueryParam("tenant_slug") != s.cfg.Tenant {
		return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
	}
	var req startConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.VisitorID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "visitor_id is required")
	}

	conv := &conversation{
		id:         "conv-" + uuid.NewString(),
		customerID: "cust-" + uuid.NewString(),
		messages:   []wire.Message{},
		subs:       map[*websocket.Conn]struct{}{},
	}
	s.mu.Lock()
	s.convs[conv.id] = conv
	s.mu.Unlock()
	log.Info().Str("component", "devserver").Str("conversation_id", conv.id).Str("visitor_id", req.VisitorID).Msg("conversation started")

	if msg := strings.TrimSpace(req.InitialMessage); msg != "" {
		m := s.appendVisitorMessage(conv, msg)
		s.maybeReply(conv, m)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"conversation_id": conv.id,
		"customer_id":     conv.customerID,
	})
}

func (s *Server) handleListMessages(c echo.Context) error {
	conv := s.conversation(c.Param("id"))
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown conversation")
	}
	conv.mu.Lock()
	msgs := make([]wire.Message, len(conv.messages))
	copy(msgs, conv.messages)
	conv.mu.Unlock()
	return c.JSON(http.StatusOK, map[string][]wire.Message{"messages": msgs})
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

func (s *Server) handleSendMessage(c echo.Context) error {
	conv := s.conversation(c.Param("id"))
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown conversation")
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	m := s.appendVisitorMessage(conv, req.Content)
	s.maybeReply(conv, m)

	return c.JSON(http.StatusCreated, map[string]any{
		"message_id": m.ID,
		"created_at": m.CreatedAt,
	})
}

func (s *Server) handleWS(c echo.Context) error {
	conv := s.conversation(c.Param("id"))
	if conv == nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown conversation")
	}
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	conv.mu.Lock()
	conv.subs[ws] = struct{}{}
	conv.mu.Unlock()
	log.Debug().Str("component", "devserver").Str("conversation_id", conv.id).Msg("ws subscriber attached")

	defer func() {
		conv.mu.Lock()
		delete(conv.subs, ws)
		conv.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}
		ev, err := wire.DecodeEvent(data)
		if err != nil {
			log.Debug().Err(err).Str("component", "devserver").Msg("dropping malformed inbound frame")
			continue
		}
		switch ev.Type {
		case wire.EventPing:
			// Keepalive, nothing to do.
		case wire.EventTyping:
			log.Debug().Str("component", "devserver").Bool("is_typing", ev.IsTyping).Msg("visitor typing")
		}
	}
}

func (s *Server) conversation(id string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[id]
}

// appendVisitorMessage stores the message and echoes it to every duplex
// subscriber, the same duplicate delivery a production backend produces.
func (s *Server) appendVisitorMessage(conv *conversation, text string) wire.Message {
	m := wire.Message{
		ID:          "msg-" + uuid.NewString(),
		SenderType:  wire.SenderVisitor,
		ContentType: wire.ContentText,
		Content:     wire.Content{Text: text},
		CreatedAt:   time.Now().UTC(),
	}
	conv.append(m)
	conv.broadcast(wire.Event{Type: wire.EventMessage, ConversationID: conv.id, Message: &m})
	return m
}

// maybeReply schedules the bot answer: typing for ReplyDelay, then a message.
func (s *Server) maybeReply(conv *conversation, visitorMsg wire.Message) {
	if !s.cfg.AutoReply {
		return
	}
	go func() {
		conv.broadcast(wire.Event{Type: wire.EventTypingStart, ConversationID: conv.id})
		time.Sleep(s.cfg.ReplyDelay)

		reply := wire.Message{
			ID:          "msg-" + uuid.NewString(),
			SenderType:  wire.SenderBot,
			ContentType: wire.ContentText,
			Content:     wire.Content{Text: "You said: " + visitorMsg.Content.Text},
			CreatedAt:   time.Now().UTC(),
		}
		conv.append(reply)
		conv.broadcast(wire.Event{Type: wire.EventTypingStop, ConversationID: conv.id})
		conv.broadcast(wire.Event{Type: wire.EventMessage, ConversationID: conv.id, Message: &reply})
	}()
}

func (c *conversation) append(m wire.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

// broadcast writes the event to every subscriber. Writes are serialized under
// the conversation lock; a failed write just drops that subscriber's frame,
// its read loop will notice the dead connection.
func (c *conversation) broadcast(ev wire.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ws := range c.subs {
		if err := ws.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Str("component", "devserver").Msg("ws write failed")
		}
	}
}
