package widget

import (
	"sync"
	"time"
)

// DefaultTypingDebounce is the trailing quiet period after the last input
// change before typing_stop fires.
const DefaultTypingDebounce = 2 * time.Second

// Debouncer bounds outbound presence signals: the first input change fires
// onStart once, and onStop fires after the quiet period regardless of how
// many input events arrived in between.
type Debouncer struct {
	interval time.Duration
	onStart  func()
	onStop   func()

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

func NewDebouncer(interval time.Duration, onStart, onStop func()) *Debouncer {
	if interval <= 0 {
		interval = DefaultTypingDebounce
	}
	return &Debouncer{interval: interval, onStart: onStart, onStop: onStop}
}

// Touch records one input change, firing onStart on the first of a burst and
// rescheduling the trailing stop timer.
func (d *Debouncer) Touch() {
	var fireStart bool
	d.mu.Lock()
	if !d.active {
		d.active = true
		fireStart = true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
	d.mu.Unlock()
	if fireStart && d.onStart != nil {
		d.onStart()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()
	if d.onStop != nil {
		d.onStop()
	}
}

// Active reports whether a typing burst is in progress.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Stop cancels the pending timer without emitting a stop signal. Used on
// teardown; leaked timers referencing a dead connection are a defect.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.active = false
	d.mu.Unlock()
}
