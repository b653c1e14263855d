package widget

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/omnisupport/chatkit/pkg/api"
	"github.com/omnisupport/chatkit/pkg/store"
	"github.com/omnisupport/chatkit/pkg/transport"
	"github.com/omnisupport/chatkit/pkg/wire"
)

// Engine is the authoritative session state container. All mutations go
// through named operations; each publishes a fresh snapshot on the bus.
type Engine struct {
	backend   Backend
	store     *store.SessionStore
	transport transport.Transport
	bus       *Bus
	typing    *Debouncer
	now       func() time.Time

	mu         sync.Mutex
	snap       Snapshot
	startGroup singleflight.Group
	pumpOnce   sync.Once
	pumpCancel context.CancelFunc
	closed     bool
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	e := &Engine{
		backend:   cfg.Backend,
		store:     cfg.Store,
		transport: cfg.Transport,
		bus:       NewBus(),
		now:       cfg.Now,
		snap: Snapshot{
			Messages:   []wire.Message{},
			Connection: transport.StateIdle,
			View:       ViewClosed,
		},
	}
	e.typing = NewDebouncer(cfg.TypingDebounce,
		func() { _ = e.transport.SendTyping(true) },
		func() { _ = e.transport.SendTyping(false) },
	)
	return e, nil
}

// Bus exposes the notification fabric for the facade's On/Off.
func (e *Engine) Bus() *Bus { return e.bus }

// Snapshot returns a deep copy of the current session state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.clone()
}

// Init loads or creates the visitor, fetches remote configuration and
// resumes a persisted conversation. Config and history failures are
// recoverable and never fatal: a failed history fetch means the session is
// stale and the engine starts fresh.
func (e *Engine) Init(ctx context.Context) error {
	e.startPump()

	v, ok := e.store.Visitor()
	if !ok {
		v = wire.NewVisitor(e.now())
		e.store.SetVisitor(v)
		log.Info().Str("component", "widget").Str("visitor_id", v.ID).Msg("created visitor identity")
	}
	e.mu.Lock()
	e.snap.Visitor = v
	e.snap.Loading = true
	e.mu.Unlock()
	e.publishState()

	if cfg, err := e.backend.FetchConfig(ctx); err != nil {
		log.Warn().Err(err).Str("component", "widget").Msg("config fetch failed, continuing with defaults")
		e.mu.Lock()
		e.snap.LastError = "configuration fetch failed"
		e.mu.Unlock()
		e.bus.Publish(EventError, ErrorPayload{Message: "configuration fetch failed"})
	} else {
		e.mu.Lock()
		e.snap.Config = cfg
		e.snap.ConfigLoaded = true
		e.snap.LastError = ""
		e.mu.Unlock()
	}

	if conv, ok := e.store.Conversation(); ok {
		msgs, err := e.backend.ListMessages(ctx, conv.ID)
		if err != nil {
			log.Warn().Err(err).Str("component", "widget").Str("conversation_id", conv.ID).Msg("history fetch failed, clearing stale session")
			e.store.ClearConversation()
		} else {
			if msgs == nil {
				msgs = []wire.Message{}
			}
			e.mu.Lock()
			c := conv
			e.snap.Conversation = &c
			e.snap.Messages = msgs
			e.mu.Unlock()
			_ = e.transport.Connect(ctx, conv.ID)
		}
	}

	e.mu.Lock()
	e.snap.Loading = false
	e.mu.Unlock()
	e.publishState()
	return nil
}

// StartConversation returns the existing conversation or creates one for the
// visitor, persisting the handle and opening the duplex channel. Concurrent
// callers collapse onto a single backend request.
func (e *Engine) StartConversation(ctx context.Context, initialMessage string) (wire.Conversation, error) {
	res, err, _ := e.startGroup.Do("start", func() (any, error) {
		e.mu.Lock()
		if e.snap.Conversation != nil {
			c := *e.snap.Conversation
			e.mu.Unlock()
			return c, nil
		}
		v := e.snap.Visitor
		e.mu.Unlock()

		resp, err := e.backend.StartConversation(ctx, api.StartConversationRequest{
			VisitorID:      v.ID,
			Name:           v.Name,
			Email:          v.Email,
			InitialMessage: initialMessage,
			Metadata:       v.Metadata,
		})
		if err != nil {
			e.mu.Lock()
			e.snap.LastError = "could not start conversation"
			e.mu.Unlock()
			e.bus.Publish(EventError, ErrorPayload{Message: "could not start conversation"})
			e.publishState()
			return nil, errors.Wrap(err, "start conversation")
		}

		conv := wire.Conversation{ID: resp.ConversationID, CustomerID: resp.CustomerID, CreatedAt: e.now()}
		e.store.SetConversation(conv)
		e.mu.Lock()
		c := conv
		e.snap.Conversation = &c
		e.snap.LastError = ""
		e.mu.Unlock()
		_ = e.transport.Connect(ctx, conv.ID)

		if initialMessage != "" {
			// The backend stored the initial message server-side; pull history so
			// the local sequence carries its server id.
			if msgs, err := e.backend.ListMessages(ctx, conv.ID); err == nil {
				e.mu.Lock()
				for _, m := range msgs {
					e.snap.Messages, _ = insertMessage(e.snap.Messages, m)
				}
				e.mu.Unlock()
			}
		}
		e.publishState()
		return conv, nil
	})
	if err != nil {
		return wire.Conversation{}, err
	}
	return res.(wire.Conversation), nil
}

// SendMessage performs the optimistic send: append immediately, reconcile the
// id and timestamp in place on confirmation, roll back on failure. Failed
// sends are not retried automatically; the visitor re-sends.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("widget: empty message")
	}
	conv, err := e.StartConversation(ctx, "")
	if err != nil {
		return err
	}
	// Keep the returned handle rather than re-reading the snapshot: a
	// conversation_closed event may clear it between these two steps.
	convID := conv.ID

	e.mu.Lock()
	optimistic := wire.NewVisitorText(text, e.now())
	e.snap.Messages = append(e.snap.Messages, optimistic)
	e.snap.Sending = true
	e.mu.Unlock()
	e.publishState()
	e.typing.Stop()

	resp, err := e.backend.SendMessage(ctx, convID, text)
	if err != nil {
		e.mu.Lock()
		e.snap.Messages = removeMessage(e.snap.Messages, optimistic.ID)
		e.snap.Sending = false
		e.snap.LastError = "message failed to send"
		e.mu.Unlock()
		e.bus.Publish(EventSendFailed, ErrorPayload{Message: "message failed to send"})
		e.publishState()
		return errors.Wrap(err, "send message")
	}

	e.mu.Lock()
	e.snap.Messages, _ = confirmMessage(e.snap.Messages, optimistic.ID, resp.MessageID, resp.CreatedAt)
	e.snap.Sending = false
	e.snap.LastError = ""
	confirmed := optimistic
	confirmed.ID = resp.MessageID
	confirmed.CreatedAt = resp.CreatedAt
	e.mu.Unlock()
	e.bus.Publish(EventMessageSent, MessagePayload{Message: confirmed})
	e.publishState()
	return nil
}

// AddMessage accepts an incoming message unless its id is already present.
// Both the duplex path and the poller funnel through here, which is what
// makes duplicate delivery across the two harmless.
func (e *Engine) AddMessage(m wire.Message) bool {
	e.mu.Lock()
	list, added := insertMessage(e.snap.Messages, m)
	if added {
		e.snap.Messages = list
	}
	e.mu.Unlock()
	if added {
		e.bus.Publish(EventMessageReceived, MessagePayload{Message: m})
		e.publishState()
	}
	return added
}

// NotifyTyping records a local input change; outbound presence signals are
// debounced so at most one stop fires per quiet period.
func (e *Engine) NotifyTyping() { e.typing.Touch() }

// Identify merges identification data into the visitor. Fields are updated,
// never replaced wholesale, and absent fields leave existing values alone.
func (e *Engine) Identify(data IdentifyData) {
	e.mu.Lock()
	v := e.snap.Visitor
	if data.Name != "" {
		v.Name = data.Name
	}
	if data.Email != "" {
		v.Email = data.Email
	}
	if len(data.Metadata) > 0 {
		md := make(map[string]any, len(v.Metadata)+len(data.Metadata))
		for k, val := range v.Metadata {
			md[k] = val
		}
		for k, val := range data.Metadata {
			md[k] = val
		}
		v.Metadata = md
	}
	e.snap.Visitor = v
	e.mu.Unlock()
	e.store.SetVisitor(v)
	e.publishState()
}

// IdentifyData is the payload of the embedding surface's identify call.
type IdentifyData struct {
	Name     string
	Email    string
	Metadata map[string]any
}

// Open shows the widget, gating on pre-chat when the tenant requires
// identity the visitor has not provided yet.
func (e *Engine) Open() {
	prechat := e.prechatRequired()
	e.mu.Lock()
	if prechat {
		e.snap.View = ViewPrechat
	} else {
		e.snap.View = ViewChat
	}
	e.mu.Unlock()
	e.publishState()
}

func (e *Engine) prechatRequired() bool {
	if e.store.PrechatCompleted() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snap.Config.RequireName && e.snap.Visitor.Name == "" {
		return true
	}
	if e.snap.Config.RequireEmail && e.snap.Visitor.Email == "" {
		return true
	}
	return false
}

// CompletePrechat stores the visitor's answers and moves to the chat view.
func (e *Engine) CompletePrechat(name, email string) {
	e.Identify(IdentifyData{Name: name, Email: email})
	e.store.SetPrechatCompleted(true)
	e.SetView(ViewChat)
}

// SetView switches the widget surface.
func (e *Engine) SetView(v View) {
	e.mu.Lock()
	if e.snap.View == v {
		e.mu.Unlock()
		return
	}
	e.snap.View = v
	e.mu.Unlock()
	e.publishState()
}

// Reset clears all persisted state and starts over with a fresh visitor.
// Remote configuration survives; it is tenant state, not session state.
func (e *Engine) Reset() {
	e.transport.Disconnect()
	e.typing.Stop()
	e.store.Reset()
	v := wire.NewVisitor(e.now())
	e.store.SetVisitor(v)
	e.mu.Lock()
	cfg, loaded := e.snap.Config, e.snap.ConfigLoaded
	e.snap = Snapshot{
		Visitor:      v,
		Messages:     []wire.Message{},
		Connection:   transport.StateIdle,
		View:         ViewClosed,
		Config:       cfg,
		ConfigLoaded: loaded,
	}
	e.mu.Unlock()
	e.publishState()
}

// Shutdown tears the engine down: pump, transport, debounce timer and bus.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.pumpCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.transport.Disconnect()
	e.typing.Stop()
	e.bus.Close()
}

func (e *Engine) startPump() {
	e.pumpOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		e.mu.Lock()
		e.pumpCancel = cancel
		e.mu.Unlock()
		go e.pump(ctx)
	})
}

// pump is the single consumer of transport events and lifecycle changes.
func (e *Engine) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.transport.Events():
			e.handleEvent(ev)
		case sc := <-e.transport.States():
			e.handleStateChange(sc)
		}
	}
}

func (e *Engine) handleEvent(ev wire.Event) {
	switch ev.Type {
	case wire.EventNewMessage:
		if ev.Message != nil {
			e.AddMessage(*ev.Message)
		}
	case wire.EventMessage:
		// Raw frame; the normalized new_message variant carries the insert.
	case wire.EventTypingStart:
		e.setAgentTyping(true)
	case wire.EventTypingStop:
		e.setAgentTyping(false)
	case wire.EventConversationClosed:
		e.handleConversationClosed()
	case wire.EventOperatorJoined:
		e.bus.Publish(EventOperatorJoined, OperatorPayload{UserID: ev.UserID})
	}
}

func (e *Engine) setAgentTyping(isTyping bool) {
	e.mu.Lock()
	changed := e.snap.AgentTyping != isTyping
	e.snap.AgentTyping = isTyping
	e.mu.Unlock()
	if changed {
		e.bus.Publish(EventAgentTyping, TypingPayload{IsTyping: isTyping})
		e.publishState()
	}
}

// handleConversationClosed drops the local session when the backend reports
// the conversation closed; the next send starts a new one.
func (e *Engine) handleConversationClosed() {
	e.store.ClearConversation()
	e.transport.Disconnect()
	e.mu.Lock()
	e.snap.Conversation = nil
	e.snap.Messages = []wire.Message{}
	e.snap.AgentTyping = false
	e.mu.Unlock()
	e.bus.Publish(EventConversationClosed, nil)
	e.publishState()
}

func (e *Engine) handleStateChange(sc transport.StateChange) {
	e.mu.Lock()
	e.snap.Connection = sc.State
	if sc.Terminal {
		e.snap.LastError = "disconnected"
	}
	e.mu.Unlock()
	e.bus.Publish(EventConnection, ConnectionPayload{State: string(sc.State), Attempt: sc.Attempt, Terminal: sc.Terminal})
	if sc.Terminal {
		e.bus.Publish(EventReconnectFailed, ConnectionPayload{State: string(sc.State), Attempt: sc.Attempt, Terminal: true})
	}
	e.publishState()
}

func (e *Engine) publishState() {
	e.bus.Publish(EventStateChanged, e.Snapshot())
}
