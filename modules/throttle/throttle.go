// Package throttle bounds the number of concurrently in-flight metadata
// syscalls so bulk re-stat bursts cannot exhaust the process file
// descriptor budget.
package throttle

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultLimit is the hard ceiling on concurrently admitted callers.
	DefaultLimit = 2048
	// DefaultTick is the polling interval of the queue drain.
	DefaultTick = 50 * time.Millisecond
)

// Throttle is two-tier admission control: callers below half the hard
// limit are admitted immediately, everyone else queues and is drained in
// FIFO order by a shared polling ticker as capacity frees up. The active
// count never exceeds the hard limit, even transiently.
type Throttle struct {
	clock    clock.Clock
	tick     time.Duration
	limit    int
	mu       sync.Mutex
	active   int
	pending  []chan struct{}
	draining bool
}

// New creates a Throttle with the given hard limit and drain tick. Zero
// values select the defaults.
func New(c clock.Clock, limit int, tick time.Duration) *Throttle {
	if c == nil {
		c = clock.New()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if tick <= 0 {
		tick = DefaultTick
	}

	return &Throttle{
		clock: c,
		tick:  tick,
		limit: limit,
	}
}

var std = New(clock.New(), DefaultLimit, DefaultTick)

// Default returns the process-wide Throttle. All watch sessions share it
// because the descriptor budget is a process-wide constraint.
func Default() *Throttle {
	return std
}

// Schedule blocks until the caller is admitted and returns the function
// that gives the slot back. Calling the release function more than once
// is a no-op.
func (t *Throttle) Schedule() func() {
	t.mu.Lock()

	if t.active < t.limit/2 {
		t.active++
		t.mu.Unlock()
		return t.releaseFn()
	}

	admitted := make(chan struct{})
	t.pending = append(t.pending, admitted)

	if !t.draining {
		t.draining = true
		ticker := t.clock.Ticker(t.tick)
		go t.drain(ticker)
	}
	t.mu.Unlock()

	<-admitted

	return t.releaseFn()
}

// Active returns the number of currently admitted callers.
func (t *Throttle) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.active
}

// Waiting returns the number of callers queued for admission.
func (t *Throttle) Waiting() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

func (t *Throttle) releaseFn() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.active--
			t.mu.Unlock()
		})
	}
}

// drain admits queued callers oldest first whenever capacity is free,
// then stops once the queue is empty.
func (t *Throttle) drain(ticker *clock.Ticker) {
	defer ticker.Stop()

	for range ticker.C {
		t.mu.Lock()
		for len(t.pending) > 0 && t.active < t.limit {
			t.active++
			close(t.pending[0])
			t.pending = t.pending[1:]
		}

		if len(t.pending) == 0 {
			t.draining = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
	}
}
