package watcher

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"semwatch/modules/throttle"
	"semwatch/modules/timers"
)

// DefaultDebounceWindow is the trailing-edge quiescence delay after the
// last raw notification before a batch is classified.
const DefaultDebounceWindow = 100 * time.Millisecond

// Options configures a watch session. The zero value works: every field
// falls back to its default, with the process-wide throttle and timer
// multiplexer shared across sessions.
type Options struct {
	// DebounceWindow is the quiescence delay before a batch flushes.
	DebounceWindow time.Duration
	// RenameTimeout bounds how long one half of a remove/create pair
	// waits for its counterpart.
	RenameTimeout time.Duration
	// StatTimeout bounds a single metadata read.
	StatTimeout time.Duration
	// Ignore skips matching paths entirely. Nil ignores nothing.
	Ignore func(path string) bool
	// IgnoreInitial drops the events produced by the initial scan.
	IgnoreInitial bool
	// Recursive watches directories including all their descendants.
	Recursive bool
	// ChannelBuffer sizes the event and error channels.
	ChannelBuffer int
	// Latency is passed through to notification backends that coalesce
	// at the OS level (fsevents). Opaque to the engine.
	Latency time.Duration

	// Injectable collaborators; nil selects the defaults.
	Logger   *zerolog.Logger
	Clock    clock.Clock
	Throttle *throttle.Throttle
	Timers   *timers.Mux
	Binder   Binder
}

func (o *Options) setDefaults() {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultDebounceWindow
	}
	if o.RenameTimeout <= 0 {
		o.RenameTimeout = DefaultRenameTimeout
	}
	if o.StatTimeout <= 0 {
		o.StatTimeout = DefaultStatTimeout
	}
	if o.ChannelBuffer <= 0 {
		o.ChannelBuffer = 64
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Throttle == nil {
		o.Throttle = throttle.Default()
	}
	if o.Timers == nil {
		o.Timers = timers.Default()
	}
	if o.Binder == nil {
		o.Binder = defaultBinder(o)
	}
}

func (o *Options) ignored(path string) bool {
	return o.Ignore != nil && o.Ignore(path)
}
