package widget

import "context"

// Widget is the embedding surface consumed by host pages: thin calls into
// the engine, nothing more.
type Widget struct {
	engine *Engine
}

func NewWidget(cfg Config) (*Widget, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &Widget{engine: e}, nil
}

// Engine exposes the underlying session engine for callers that need the
// full operation surface.
func (w *Widget) Engine() *Engine { return w.engine }

func (w *Widget) Init(ctx context.Context) error { return w.engine.Init(ctx) }

func (w *Widget) Open() { w.engine.Open() }

func (w *Widget) Close() { w.engine.SetView(ViewClosed) }

func (w *Widget) Toggle() {
	if w.engine.Snapshot().View == ViewClosed {
		w.engine.Open()
	} else {
		w.engine.SetView(ViewClosed)
	}
}

func (w *Widget) Identify(data IdentifyData) { w.engine.Identify(data) }

func (w *Widget) Send(ctx context.Context, text string) error {
	return w.engine.SendMessage(ctx, text)
}

// Typing records a local input change; the engine debounces the signals.
func (w *Widget) Typing() { w.engine.NotifyTyping() }

func (w *Widget) On(event string, fn func(payload []byte)) string {
	return w.engine.Bus().On(event, fn)
}

func (w *Widget) Off(id string) { w.engine.Bus().Off(id) }

func (w *Widget) Snapshot() Snapshot { return w.engine.Snapshot() }

func (w *Widget) Shutdown() { w.engine.Shutdown() }
