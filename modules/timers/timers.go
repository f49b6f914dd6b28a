// Package timers multiplexes any number of scheduled callbacks onto a
// single shared polling ticker, so the cost in live timers stays constant
// no matter how many expirations are pending.
package timers

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTick is the polling interval of the shared ticker. A callback
// fires no earlier than its deadline and no later than one tick after it.
const DefaultTick = 50 * time.Millisecond

// Handle identifies one scheduled callback and can be used to cancel it.
type Handle struct {
	deadline time.Time
	fn       func()
}

// Mux drives scheduled callbacks off one shared polling ticker. The
// ticker runs only while callbacks are pending.
type Mux struct {
	clock   clock.Clock
	tick    time.Duration
	mu      sync.Mutex
	pending map[*Handle]struct{}
	running bool
}

// New creates a Mux polling with the given tick. A tick of zero selects
// DefaultTick.
func New(c clock.Clock, tick time.Duration) *Mux {
	if c == nil {
		c = clock.New()
	}
	if tick <= 0 {
		tick = DefaultTick
	}

	return &Mux{
		clock:   c,
		tick:    tick,
		pending: make(map[*Handle]struct{}),
	}
}

var std = New(clock.New(), DefaultTick)

// Default returns the process-wide Mux shared by all watch sessions.
func Default() *Mux {
	return std
}

// Schedule registers fn to run once d has elapsed. The returned Handle
// cancels the callback when passed to Cancel.
func (m *Mux) Schedule(d time.Duration, fn func()) *Handle {
	h := &Handle{
		deadline: m.clock.Now().Add(d),
		fn:       fn,
	}

	m.mu.Lock()
	m.pending[h] = struct{}{}
	if !m.running {
		m.running = true
		// The ticker is created before Schedule returns so that a caller
		// advancing a mock clock immediately afterwards cannot outrun it.
		ticker := m.clock.Ticker(m.tick)
		go m.poll(ticker)
	}
	m.mu.Unlock()

	return h
}

// Cancel removes a scheduled callback. Canceling an already fired or
// already canceled handle is a no-op.
func (m *Mux) Cancel(h *Handle) {
	if h == nil {
		return
	}

	m.mu.Lock()
	delete(m.pending, h)
	m.mu.Unlock()
}

// Pending returns the number of callbacks still waiting to fire.
func (m *Mux) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.pending)
}

func (m *Mux) poll(ticker *clock.Ticker) {
	defer ticker.Stop()

	for now := range ticker.C {
		for _, h := range m.takeDue(now) {
			h.fn()
		}

		m.mu.Lock()
		if len(m.pending) == 0 {
			m.running = false
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
	}
}

// takeDue removes and returns every handle whose deadline has passed,
// ordered by deadline so earlier expirations fire first.
func (m *Mux) takeDue(now time.Time) []*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*Handle
	for h := range m.pending {
		if !h.deadline.After(now) {
			due = append(due, h)
			delete(m.pending, h)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	return due
}
