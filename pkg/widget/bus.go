package widget

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

const busTopicPrefix = "widget."

// Bus is the in-process notification fabric behind the facade's On/Off.
// Each event name is its own topic; callbacks run on their own goroutine so
// a slow host-page listener cannot stall the engine.
type Bus struct {
	ch *gochannel.GoChannel

	mu     sync.Mutex
	subs   map[string]context.CancelFunc
	closed bool
}

func NewBus() *Bus {
	return &Bus{
		ch: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
		subs: map[string]context.CancelFunc{},
	}
}

// Publish encodes the payload and fans it out to subscribers of the event.
// Events without subscribers are dropped.
func (b *Bus) Publish(event string, payload any) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn().Err(err).Str("component", "widget_bus").Str("event", event).Msg("failed to encode event payload")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.ch.Publish(busTopicPrefix+event, msg); err != nil {
		log.Warn().Err(err).Str("component", "widget_bus").Str("event", event).Msg("failed to publish event")
	}
}

// On registers a callback for an event and returns a subscription id for Off.
func (b *Bus) On(event string, fn func(payload []byte)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || fn == nil {
		return ""
	}
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := b.ch.Subscribe(ctx, busTopicPrefix+event)
	if err != nil {
		cancel()
		log.Warn().Err(err).Str("component", "widget_bus").Str("event", event).Msg("subscribe failed")
		return ""
	}
	id := watermill.NewUUID()
	b.subs[id] = cancel
	go func() {
		for m := range msgs {
			fn(m.Payload)
			m.Ack()
		}
	}()
	return id
}

// Off cancels a subscription. Unknown ids are ignored.
func (b *Bus) Off(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.subs[id]; ok {
		cancel()
		delete(b.subs, id)
	}
}

// Close cancels every subscription and shuts the underlying pub/sub down.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, cancel := range b.subs {
		cancel()
		delete(b.subs, id)
	}
	b.mu.Unlock()
	_ = b.ch.Close()
}
