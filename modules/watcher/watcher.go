package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"semwatch/models"
)

// ErrClosed is returned by operations on a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// ErrUnsupportedKind marks a bind target that is neither a regular file
// nor a directory. It is reported on the error channel and does not
// abort sibling binds.
var ErrUnsupportedKind = errors.New("path is neither a regular file nor a directory")

type boundRoot struct {
	pipeline *pipeline
	binding  Binding
}

// Watcher is one watch session: its own cache, correlator and pipelines,
// sharing the process-wide throttle and timer multiplexer unless the
// options inject isolated instances.
type Watcher struct {
	ID uuid.UUID

	opts       Options
	log        zerolog.Logger
	cache      *Cache
	correlator *Correlator

	events chan Event
	errs   chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	roots  map[string]*boundRoot
	closed bool
}

// New creates an idle watch session. Add binds roots to it.
func New(opts Options) (*Watcher, error) {
	opts.setDefaults()

	id := uuid.New()
	gateway := NewStatGateway(opts.Clock, opts.Throttle, opts.StatTimeout)
	cache := NewCache(gateway)

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		ID:     id,
		opts:   opts,
		log:    opts.Logger.With().Str("session", id.String()).Logger(),
		cache:  cache,
		events: make(chan Event, opts.ChannelBuffer),
		errs:   make(chan error, opts.ChannelBuffer),
		ctx:    ctx,
		cancel: cancel,
		roots:  make(map[string]*boundRoot),
	}
	w.correlator = NewCorrelator(cache, opts.Timers, opts.RenameTimeout, w.dispatch)

	return w, nil
}

// Events delivers the session's semantic events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors delivers bind diagnostics.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Cache exposes the live state cache for inspection.
func (w *Watcher) Cache() *Cache {
	return w.cache
}

// Add binds the given paths and runs their initial scans; it returns
// once watching is live. When any path in the batch contains another,
// all bind serially in input order so overlapping registrations cannot
// race; otherwise they bind concurrently. A missing target fails its own
// bind only, and an unsupported entry kind is reported on the error
// channel without aborting siblings.
func (w *Watcher) Add(ctx context.Context, paths ...string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.mu.Unlock()

	abs := make([]string, 0, len(paths))
	for _, path := range paths {
		p, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		abs = append(abs, p)
	}

	if containsOverlap(abs) {
		var errs []error
		for _, path := range abs {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			errs = append(errs, w.bind(ctx, path))
		}
		return errors.Join(errs...)
	}

	errs := make([]error, len(abs))
	var wg sync.WaitGroup
	for i, path := range abs {
		i, path := i, path
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = w.bind(ctx, path)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (w *Watcher) bind(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	md, err := models.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", path, err)
	}
	if !md.Supported() {
		w.sendError(fmt.Errorf("%w: %s", ErrUnsupportedKind, path))
		return nil
	}

	binding, err := w.opts.Binder.Bind(path, w.opts.Recursive)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", path, err)
	}

	p := newPipeline(w, path, w.opts.Recursive)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = binding.Unbind()
		return ErrClosed
	}
	w.roots[path] = &boundRoot{pipeline: p, binding: binding}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.pump(p, binding)

	p.runInitialScan(ctx)
	w.log.Debug().Msgf("watching %s", path)

	return nil
}

// pump feeds one binding's raw notifications into its pipeline. An error
// from the primitive cannot be told apart from a change without a
// successful stat, so it turns into a re-stat of the root.
func (w *Watcher) pump(p *pipeline, binding Binding) {
	defer w.wg.Done()

	names := binding.Names()
	errs := binding.Errors()

	for {
		select {
		case name, ok := <-names:
			if !ok {
				return
			}
			p.notify(name)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.log.Debug().Err(err).Msgf("notification error on %s, re-examining root", p.root)
			p.notify(".")

		case <-w.ctx.Done():
			return
		}
	}
}

// unbindUnder tears down every live binding rooted at or under path.
// Called by pipelines before a removal event is routed onward.
func (w *Watcher) unbindUnder(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for root, bound := range w.roots {
		if root != path && !strings.HasPrefix(root, path+string(filepath.Separator)) {
			continue
		}

		bound.pipeline.stop()
		if err := bound.binding.Unbind(); err != nil {
			w.log.Debug().Err(err).Msgf("failed to unbind %s", root)
		}
		delete(w.roots, root)
	}
}

// dispatch hands one terminal event to the listener channel. A full
// channel drops the event rather than wedging timer callbacks behind a
// slow consumer.
func (w *Watcher) dispatch(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.events <- event:
	default:
		w.log.Warn().Msgf("event channel full, dropping %s %s", event.Kind, event.Path)
	}
}

func (w *Watcher) sendError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	select {
	case w.errs <- err:
	default:
		w.log.Warn().Err(err).Msg("error channel full, dropping")
	}
}

// Reset wipes the session's cache and pending correlations. Bindings
// stay live; state rebuilds from subsequent observations.
func (w *Watcher) Reset() {
	w.correlator.Reset()
}

// Close unbinds every root, cancels pending correlations and closes the
// event and error channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.closed = true

	var errs []error
	for root, bound := range w.roots {
		bound.pipeline.stop()
		if err := bound.binding.Unbind(); err != nil {
			errs = append(errs, fmt.Errorf("failed to unbind %s: %w", root, err))
		}
		delete(w.roots, root)
	}
	w.mu.Unlock()

	w.cancel()
	w.correlator.Reset()
	w.wg.Wait()

	close(w.events)
	close(w.errs)

	return errors.Join(errs...)
}

// containsOverlap reports whether any path in the batch is an ancestor
// of another.
func containsOverlap(paths []string) bool {
	for i, a := range paths {
		for j, b := range paths {
			if i == j {
				continue
			}
			if a == b || strings.HasPrefix(b, a+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}
