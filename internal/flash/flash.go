// Package flash emits transient price-direction signals keyed by instrument
// code. Each signal is published as an active event and cleared after a
// fixed duration; rendering is left to subscribers.
package flash

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultDuration is how long a flash stays active.
const DefaultDuration = 300 * time.Millisecond

// Direction of a price change.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// DirectionOf returns Up when newPrice is above oldPrice, Down otherwise.
func DirectionOf(oldPrice, newPrice float64) Direction {
	if newPrice > oldPrice {
		return Up
	}
	return Down
}

// Event is published when a flash starts (Active) and when it clears.
type Event struct {
	Code      string    `json:"code"`
	Direction Direction `json:"direction"`
	Active    bool      `json:"active"`
	At        time.Time `json:"at"`
}

type pending struct {
	seq   uint64
	dir   Direction
	timer *time.Timer
}

// Notifier fans flash events out to subscribers and owns the clear timers.
type Notifier struct {
	duration time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	subs    map[chan Event]struct{}
	pending map[string]pending
	seq     uint64
	closed  bool
}

// New creates a Notifier. A non-positive duration selects DefaultDuration.
func New(duration time.Duration, logger *slog.Logger) *Notifier {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		duration: duration,
		logger:   logger,
		subs:     make(map[chan Event]struct{}),
		pending:  make(map[string]pending),
	}
}

// Emit starts a flash for code. A pending flash for the same code is
// replaced and its clear timer restarted.
func (n *Notifier) Emit(code string, dir Direction) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	if p, ok := n.pending[code]; ok {
		p.timer.Stop()
	}

	n.seq++
	seq := n.seq
	n.pending[code] = pending{
		seq: seq,
		dir: dir,
		timer: time.AfterFunc(n.duration, func() {
			n.expire(code, seq)
		}),
	}

	n.publishLocked(Event{Code: code, Direction: dir, Active: true, At: time.Now()})
}

// expire clears the flash for code if it is still the one scheduled as seq.
func (n *Notifier) expire(code string, seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.pending[code]
	if !ok || p.seq != seq || n.closed {
		return
	}
	delete(n.pending, code)

	n.publishLocked(Event{Code: code, Direction: p.dir, Active: false, At: time.Now()})
}

// ClearAll stops every pending timer and publishes the clears immediately.
func (n *Notifier) ClearAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	for code, p := range n.pending {
		p.timer.Stop()
		delete(n.pending, code)
		if !n.closed {
			n.publishLocked(Event{Code: code, Direction: p.dir, Active: false, At: now})
		}
	}
}

// Pending returns the number of flashes awaiting their clear.
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Subscribe returns a channel of events and a function that ends the
// subscription. Slow subscribers miss events rather than block emitters.
func (n *Notifier) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[ch]; ok {
				delete(n.subs, ch)
				close(ch)
			}
		})
	}
}

// Close stops all timers and closes every subscriber channel.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true

	for code, p := range n.pending {
		p.timer.Stop()
		delete(n.pending, code)
	}
	for ch := range n.subs {
		delete(n.subs, ch)
		close(ch)
	}
}

func (n *Notifier) publishLocked(ev Event) {
	for ch := range n.subs {
		select {
		case ch <- ev:
		default:
			n.logger.Debug("flash subscriber full, dropping event", "code", ev.Code)
		}
	}
}
