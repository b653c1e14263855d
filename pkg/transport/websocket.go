package transport

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omnisupport/chatkit/pkg/wire"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultBackoffBase       = time.Second
	DefaultBackoffCap        = 30 * time.Second
	DefaultMaxAttempts       = 10
)

// Conn is the subset of a websocket connection the manager needs. Satisfied
// by *websocket.Conn; tests substitute stubs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes duplex connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct {
	d *websocket.Dialer
}

func (g gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := g.d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ManagerConfig configures the websocket connection manager.
type ManagerConfig struct {
	// Endpoint maps a conversation id to its duplex channel URL. Required.
	Endpoint func(conversationID string) string
	// Dialer overrides the gorilla dialer. Optional.
	Dialer Dialer
	// HeartbeatInterval between keepalive frames while open. Default 30s.
	HeartbeatInterval time.Duration
	// BackoffBase and BackoffCap bound the reconnect schedule. Defaults 1s/30s.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxAttempts consecutive failures before the manager gives up. Default 10.
	MaxAttempts int
}

// Manager keeps at most one live duplex connection per conversation, with
// automatic recovery. Dial failures and post-open drops drive the same
// reconnect/backoff path.
type Manager struct {
	cfg    ManagerConfig
	events chan wire.Event
	states chan StateChange

	mu              sync.Mutex
	state           State
	convID          string
	conn            Conn
	shouldReconnect bool
	attempt         int
	// gen invalidates callbacks from torn-down connections and timers.
	gen             int
	backoff         *backoff.ExponentialBackOff
	retryTimer      *time.Timer
	heartbeatCancel context.CancelFunc
	dialCtx         context.Context
}

var _ Transport = (*Manager)(nil)

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Endpoint == nil {
		return nil, errors.New("ws manager: endpoint func is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = gorillaDialer{d: websocket.DefaultDialer}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{
		cfg:     cfg,
		events:  make(chan wire.Event, 64),
		states:  make(chan StateChange, 32),
		state:   StateIdle,
		backoff: newReconnectBackoff(cfg.BackoffBase, cfg.BackoffCap),
	}, nil
}

func (m *Manager) Events() <-chan wire.Event   { return m.events }
func (m *Manager) States() <-chan StateChange  { return m.states }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connect(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("ws manager: empty conversation id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	if m.convID == conversationID && (m.state == StateConnecting || m.state == StateOpen) {
		m.mu.Unlock()
		return nil
	}
	hadConn := m.conn != nil
	m.teardownLocked()
	if hadConn {
		m.state = StateClosed
		m.emitState(StateChange{State: StateClosed})
	}
	m.convID = conversationID
	m.shouldReconnect = true
	m.attempt = 0
	m.backoff.Reset()
	m.dialCtx = ctx
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	m.emitState(StateChange{State: StateConnecting})
	m.mu.Unlock()

	go m.dial(gen)
	return nil
}

func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	m.gen++
	m.teardownLocked()
	if m.state != StateIdle {
		m.state = StateIdle
		m.emitState(StateChange{State: StateIdle})
	}
	m.convID = ""
	m.mu.Unlock()
}

func (m *Manager) Send(ev wire.Event) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		log.Debug().Str("component", "ws_transport").Str("event", string(ev.Type)).Msg("send while not open, dropping")
		return nil
	}
	conn := m.conn
	gen := m.gen
	m.mu.Unlock()

	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "ws manager: encode outbound event")
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		m.connectionLost(gen, err)
	}
	return nil
}

func (m *Manager) SendTyping(isTyping bool) error {
	return m.Send(wire.TypingEnvelope(isTyping))
}

// teardownLocked stops timers and closes the live connection without
// touching reconnect bookkeeping.
func (m *Manager) teardownLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.heartbeatCancel != nil {
		m.heartbeatCancel()
		m.heartbeatCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

func (m *Manager) dial(gen int) {
	m.mu.Lock()
	if gen != m.gen || !m.shouldReconnect {
		m.mu.Unlock()
		return
	}
	ctx := m.dialCtx
	endpoint := m.cfg.Endpoint(m.convID)
	m.mu.Unlock()

	conn, err := m.cfg.Dialer.Dial(ctx, endpoint)
	if err != nil {
		log.Warn().Err(err).Str("component", "ws_transport").Str("endpoint", endpoint).Msg("dial failed")
		m.connectionLost(gen, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || !m.shouldReconnect {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.attempt = 0
	m.backoff.Reset()
	m.state = StateOpen
	hbCtx, hbCancel := context.WithCancel(context.Background())
	m.heartbeatCancel = hbCancel
	m.emitState(StateChange{State: StateOpen})
	m.mu.Unlock()

	go m.heartbeat(hbCtx, conn, gen)
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(gen, err)
			return
		}
		ev, err := wire.DecodeEvent(data)
		if err != nil {
			log.Warn().Err(err).Str("component", "ws_transport").Msg("dropping malformed frame")
			continue
		}
		if !ev.Known() {
			log.Debug().Str("component", "ws_transport").Str("type", string(ev.Type)).Msg("ignoring unknown event type")
			continue
		}
		m.emitEvent(ev)
		if ev.Type == wire.EventMessage && ev.Message != nil {
			// Re-emit as the normalized variant so consumers that only care
			// about fully-typed messages have a single tag to watch.
			m.emitEvent(wire.Event{
				Type:           wire.EventNewMessage,
				ConversationID: ev.ConversationID,
				Message:        ev.Message,
			})
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn Conn, gen int) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	payload, _ := json.Marshal(wire.PingEnvelope())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			open := gen == m.gen && m.state == StateOpen
			m.mu.Unlock()
			if !open {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.connectionLost(gen, err)
				return
			}
		}
	}
}

// connectionLost handles both dial failures and post-open drops: same
// backoff path, never a fatal error.
func (m *Manager) connectionLost(gen int, cause error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.heartbeatCancel != nil {
		m.heartbeatCancel()
		m.heartbeatCancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if !m.shouldReconnect {
		m.state = StateClosed
		m.emitState(StateChange{State: StateClosed, Err: cause})
		m.mu.Unlock()
		return
	}
	m.attempt++
	attempt := m.attempt
	if attempt >= m.cfg.MaxAttempts {
		m.shouldReconnect = false
		m.state = StateClosed
		m.emitState(StateChange{State: StateClosed, Attempt: attempt, Err: cause, Terminal: true})
		log.Warn().Err(cause).Str("component", "ws_transport").Int("attempts", attempt).Msg("reconnect budget exhausted")
		m.mu.Unlock()
		return
	}
	delay := m.backoff.NextBackOff()
	m.state = StateReconnecting
	m.emitState(StateChange{State: StateReconnecting, Attempt: attempt, Err: cause})
	m.gen++
	next := m.gen
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if next != m.gen || !m.shouldReconnect {
			m.mu.Unlock()
			return
		}
		m.retryTimer = nil
		m.state = StateConnecting
		m.emitState(StateChange{State: StateConnecting, Attempt: attempt})
		m.mu.Unlock()
		m.dial(next)
	})
	m.mu.Unlock()
}

func (m *Manager) emitEvent(ev wire.Event) {
	select {
	case m.events <- ev:
	default:
		log.Warn().Str("component", "ws_transport").Str("type", string(ev.Type)).Msg("event channel full, dropping")
	}
}

func (m *Manager) emitState(sc StateChange) {
	select {
	case m.states <- sc:
	default:
		log.Warn().Str("component", "ws_transport").Str("state", string(sc.State)).Msg("state channel full, dropping")
	}
}
