package watcher

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"

	"semwatch/models"
)

// pipeline batches the raw notifications of one watched root. Paths
// accumulate in an ordered pending set until the debounce window has
// been quiet, then the whole set is classified, deduplicated and routed.
// During the initial scan classification bypasses the debounce window
// and results queue on an initial list that the next flush prepends.
type pipeline struct {
	w         *Watcher
	root      string
	recursive bool

	mu         sync.Mutex
	pending    []string
	pendingSet map[string]struct{}
	initial    []Event
	scanning   bool
	flushTimer *clock.Timer
}

func newPipeline(w *Watcher, root string, recursive bool) *pipeline {
	return &pipeline{
		w:          w,
		root:       root,
		recursive:  recursive,
		pendingSet: make(map[string]struct{}),
	}
}

// notify handles one raw notification carrying a best-effort name
// relative to the root ("." means the root itself).
func (p *pipeline) notify(name string) {
	path := p.root
	if name != "" && name != "." {
		path = filepath.Join(p.root, name)
	}
	if path != p.root && p.w.opts.ignored(path) {
		return
	}

	p.mu.Lock()
	if p.scanning {
		p.mu.Unlock()
		events := p.w.cache.Update(path)
		p.mu.Lock()
		p.initial = append(p.initial, events...)
		p.mu.Unlock()
		return
	}

	if _, ok := p.pendingSet[path]; !ok {
		p.pendingSet[path] = struct{}{}
		p.pending = append(p.pending, path)
	}

	// Restartable single-slot timer: every notification abandons the
	// previous arm and opens a fresh quiescence window.
	if p.flushTimer == nil {
		p.flushTimer = p.w.opts.Clock.AfterFunc(p.w.opts.DebounceWindow, p.flush)
	} else {
		p.flushTimer.Stop()
		p.flushTimer.Reset(p.w.opts.DebounceWindow)
	}
	p.mu.Unlock()
}

// flush classifies the pending set in arrival order, prepends any
// unflushed initial-scan events, dedups the batch and routes it.
func (p *pipeline) flush() {
	p.mu.Lock()
	paths := p.pending
	p.pending = nil
	p.pendingSet = make(map[string]struct{})
	initial := p.initial
	p.initial = nil
	p.mu.Unlock()

	var batch []Event
	if !p.w.opts.IgnoreInitial {
		batch = append(batch, initial...)
	}
	for _, path := range paths {
		batch = append(batch, p.w.cache.Update(path)...)
	}

	for _, event := range dedupBatch(batch) {
		if event.Kind.IsRemoval() {
			p.w.unbindUnder(event.Path)
		}

		if event.Kind == KindModifiedFile || event.Kind == KindModifiedDir {
			p.w.dispatch(event)
			continue
		}
		p.w.correlator.Process(event.Kind, event.Path)
	}
}

// dedupBatch drops an event repeating the kind of the immediately
// preceding event for the same path, and a modified directly following a
// created for the same path.
func dedupBatch(batch []Event) []Event {
	lastKind := make(map[string]Kind, len(batch))

	out := batch[:0]
	for _, event := range batch {
		last, seen := lastKind[event.Path]
		lastKind[event.Path] = event.Kind

		if seen && last == event.Kind {
			continue
		}
		if seen && event.Kind == KindModifiedFile && last == KindCreatedFile {
			continue
		}
		if seen && event.Kind == KindModifiedDir && last == KindCreatedDir {
			continue
		}
		out = append(out, event)
	}

	return out
}

// runInitialScan classifies the root and, for directories, every entry
// below it, outside the debounce window. Cancellation is checked before
// each directory listing; already-cached paths are skipped. One
// immediate flush follows so the results dispatch without waiting for
// fresh activity.
func (p *pipeline) runInitialScan(ctx context.Context) {
	p.mu.Lock()
	p.scanning = true
	p.mu.Unlock()

	var events []Event

	if !p.w.cache.Has(p.root) {
		events = append(events, p.w.cache.Update(p.root)...)
	}
	if md, ok := p.w.cache.Lookup(p.root); ok && md.IsDir {
		events = append(events, p.scanDir(ctx, p.root)...)
	}

	p.mu.Lock()
	p.initial = append(p.initial, events...)
	p.scanning = false
	p.mu.Unlock()

	p.flush()
}

func (p *pipeline) scanDir(ctx context.Context, dir string) []Event {
	if ctx.Err() != nil {
		return nil
	}

	files, dirs, err := models.ListDir(dir)
	if err != nil {
		p.w.opts.Logger.Debug().Err(err).Msgf("initial scan cannot list %s", dir)
		return nil
	}

	var events []Event
	for _, name := range files {
		path := filepath.Join(dir, name)
		if p.w.opts.ignored(path) || p.w.cache.Has(path) {
			continue
		}
		events = append(events, p.w.cache.Update(path)...)
	}
	for _, name := range dirs {
		path := filepath.Join(dir, name)
		if p.w.opts.ignored(path) {
			continue
		}
		if !p.w.cache.Has(path) {
			events = append(events, p.w.cache.Update(path)...)
		}
		if p.recursive {
			events = append(events, p.scanDir(ctx, path)...)
		}
	}

	return events
}

// stop abandons any armed flush. Pending paths are dropped with it.
func (p *pipeline) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flushTimer != nil {
		p.flushTimer.Stop()
		p.flushTimer = nil
	}
}
