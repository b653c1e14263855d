package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/omnisupport/chatkit/pkg/wire"
)

// DefaultPollInterval is how often the fallback refetches the message list.
const DefaultPollInterval = time.Second

// MessageLister is the history-fetch dependency of the poller, satisfied by
// the api client.
type MessageLister interface {
	ListMessages(ctx context.Context, conversationID string) ([]wire.Message, error)
}

// PollerConfig configures the polling fallback transport.
type PollerConfig struct {
	Lister   MessageLister
	Interval time.Duration
}

// Poller is the degraded-mode transport: it refetches the full message list
// on a fixed interval and emits anything beyond the locally known count.
// Consistency is explicitly weaker than the duplex path: no incremental
// deltas, no typing signals, and a server-side history rewrite (a shrink or
// an in-place edit) goes undetected since only the count is compared.
// Not a production delivery guarantee.
type Poller struct {
	cfg    PollerConfig
	events chan wire.Event
	states chan StateChange

	mu     sync.Mutex
	state  State
	convID string
	cancel context.CancelFunc
	known  int
}

var _ Transport = (*Poller)(nil)

func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Lister == nil {
		return nil, errors.New("poller: message lister is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{
		cfg:    cfg,
		events: make(chan wire.Event, 64),
		states: make(chan StateChange, 16),
		state:  StateIdle,
	}, nil
}

func (p *Poller) Events() <-chan wire.Event  { return p.events }
func (p *Poller) States() <-chan StateChange { return p.states }

func (p *Poller) Connect(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("poller: empty conversation id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	if p.convID == conversationID && (p.state == StateConnecting || p.state == StateOpen) {
		p.mu.Unlock()
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.convID = conversationID
	p.known = 0
	p.state = StateOpen
	p.emitState(StateChange{State: StateOpen})
	p.mu.Unlock()

	go p.loop(pollCtx, conversationID)
	return nil
}

func (p *Poller) Disconnect() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.state != StateIdle {
		p.state = StateIdle
		p.emitState(StateChange{State: StateIdle})
	}
	p.convID = ""
	p.mu.Unlock()
}

// Send drops outbound envelopes: the polling path has no duplex channel.
func (p *Poller) Send(ev wire.Event) error {
	log.Debug().Str("component", "poll_transport").Str("event", string(ev.Type)).Msg("polling transport cannot send, dropping")
	return nil
}

// SendTyping is a no-op: the polling path carries no presence signals.
func (p *Poller) SendTyping(bool) error { return nil }

func (p *Poller) loop(ctx context.Context, conversationID string) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	p.poll(ctx, conversationID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, conversationID)
		}
	}
}

func (p *Poller) poll(ctx context.Context, conversationID string) {
	msgs, err := p.cfg.Lister.ListMessages(ctx, conversationID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Debug().Err(err).Str("component", "poll_transport").Msg("poll failed, will retry next tick")
		return
	}
	p.mu.Lock()
	if ctx.Err() != nil || p.convID != conversationID {
		p.mu.Unlock()
		return
	}
	known := p.known
	if len(msgs) <= known {
		p.mu.Unlock()
		return
	}
	p.known = len(msgs)
	fresh := msgs[known:]
	p.mu.Unlock()

	for i := range fresh {
		msg := fresh[i]
		p.emitEvent(wire.Event{
			Type:           wire.EventNewMessage,
			ConversationID: conversationID,
			Message:        &msg,
		})
	}
}

func (p *Poller) emitEvent(ev wire.Event) {
	select {
	case p.events <- ev:
	default:
		log.Warn().Str("component", "poll_transport").Msg("event channel full, dropping")
	}
}

func (p *Poller) emitState(sc StateChange) {
	select {
	case p.states <- sc:
	default:
		log.Warn().Str("component", "poll_transport").Msg("state channel full, dropping")
	}
}
