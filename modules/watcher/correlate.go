package watcher

import (
	"sync"
	"time"

	"semwatch/modules/timers"
)

// DefaultRenameTimeout is how long one half of a remove/create pair
// waits for its counterpart before resolving on its own.
const DefaultRenameTimeout = 250 * time.Millisecond

// lock is one parked half of a remove/create pair, keyed by inode in its
// table. The handle cancels its scheduled resolver.
type lock struct {
	path   string
	handle *timers.Handle
}

// lockTable holds the pending correlations of one namespace. At most one
// lock exists per inode and side; a new registration overwrites, it does
// not queue.
type lockTable struct {
	// awaitingRemoval parks creations waiting for their removal half.
	awaitingRemoval map[uint64]*lock
	// awaitingCreation parks removals waiting for their creation half.
	awaitingCreation map[uint64]*lock
}

func newLockTable() *lockTable {
	return &lockTable{
		awaitingRemoval:  make(map[uint64]*lock),
		awaitingCreation: make(map[uint64]*lock),
	}
}

// Correlator pairs removal and creation events that share an inode into
// rename or modify events, within a bounded window. Files and
// directories correlate in separate namespaces, so a cross-kind
// replacement resolves as an independent removal and creation.
//
// Whichever half arrives second drives the resolution; a half whose
// counterpart never shows resolves alone when its timer expires.
type Correlator struct {
	cache   *Cache
	timers  *timers.Mux
	timeout time.Duration
	emit    func(Event)

	mu    sync.Mutex
	files *lockTable
	dirs  *lockTable
}

// NewCorrelator creates a correlator emitting terminal events through
// emit. A zero timeout selects DefaultRenameTimeout. Emission happens
// outside the correlator's lock, so emit may block without wedging
// concurrent correlation.
func NewCorrelator(cache *Cache, mux *timers.Mux, timeout time.Duration, emit func(Event)) *Correlator {
	if mux == nil {
		mux = timers.Default()
	}
	if timeout <= 0 {
		timeout = DefaultRenameTimeout
	}

	return &Correlator{
		cache:   cache,
		timers:  mux,
		timeout: timeout,
		emit:    emit,
		files:   newLockTable(),
		dirs:    newLockTable(),
	}
}

// Cache returns the state cache this correlator resolves against.
func (c *Correlator) Cache() *Cache {
	return c.cache
}

// Process feeds one classified creation or removal event into the lock
// protocol with the configured timeout. Modified and renamed kinds are
// correlator outputs, never inputs; they pass through unchanged.
func (c *Correlator) Process(kind Kind, path string) {
	c.ProcessWithTimeout(kind, path, c.timeout)
}

// ProcessWithTimeout is Process with a per-call correlation window.
func (c *Correlator) ProcessWithTimeout(kind Kind, path string, timeout time.Duration) {
	switch {
	case kind.IsCreation():
		c.processCreation(kind, path, timeout)
	case kind.IsRemoval():
		c.processRemoval(kind, path, timeout)
	default:
		c.emit(Event{Kind: kind, Path: path})
	}
}

// processCreation parks a creation for its inode, or resolves against a
// removal that arrived first.
func (c *Correlator) processCreation(kind Kind, path string, timeout time.Duration) {
	inode, ok := c.cache.ObservedInode(kind, path)
	if !ok {
		// No identity signal, nothing to correlate with.
		c.emit(Event{Kind: kind, Path: path})
		return
	}

	isDir := kind.IsDir()

	c.mu.Lock()
	table := c.table(isDir)

	l := &lock{path: path}
	l.handle = c.timers.Schedule(timeout, func() {
		c.creationExpired(table, inode, l, isDir)
	})
	if old := table.awaitingRemoval[inode]; old != nil {
		c.timers.Cancel(old.handle)
	}
	table.awaitingRemoval[inode] = l

	if removal := table.awaitingCreation[inode]; removal != nil {
		c.timers.Cancel(removal.handle)
		c.timers.Cancel(l.handle)
		delete(table.awaitingCreation, inode)
		delete(table.awaitingRemoval, inode)
		events := c.resolvePair(removal.path, path, isDir)
		c.mu.Unlock()

		for _, event := range events {
			c.emit(event)
		}
		return
	}
	c.mu.Unlock()
}

// processRemoval parks a removal for its inode, or resolves against a
// creation that arrived first.
func (c *Correlator) processRemoval(kind Kind, path string, timeout time.Duration) {
	inode, ok := c.cache.ObservedInode(kind, path)
	if !ok {
		c.emit(Event{Kind: kind, Path: path})
		return
	}

	isDir := kind.IsDir()

	c.mu.Lock()
	table := c.table(isDir)

	l := &lock{path: path}
	l.handle = c.timers.Schedule(timeout, func() {
		c.removalExpired(table, inode, l, isDir)
	})
	if old := table.awaitingCreation[inode]; old != nil {
		c.timers.Cancel(old.handle)
	}
	table.awaitingCreation[inode] = l

	if creation := table.awaitingRemoval[inode]; creation != nil {
		c.timers.Cancel(creation.handle)
		c.timers.Cancel(l.handle)
		delete(table.awaitingRemoval, inode)
		delete(table.awaitingCreation, inode)
		events := c.resolvePair(path, creation.path, isDir)
		c.mu.Unlock()

		for _, event := range events {
			c.emit(event)
		}
		return
	}
	c.mu.Unlock()
}

// resolvePair turns a matched removal (oldPath) and creation (newPath)
// of the same inode into the terminal event. Same path means the entry
// reappeared in place: modified while it still exists, silence when it
// is already gone again. Different paths mean a rename. Caller holds
// c.mu.
func (c *Correlator) resolvePair(oldPath, newPath string, isDir bool) []Event {
	if oldPath == newPath {
		if c.cache.Has(newPath) {
			return []Event{{Kind: modifiedKind(isDir), Path: newPath}}
		}
		return nil
	}

	return []Event{{Kind: renamedKind(isDir), Path: newPath, OldPath: oldPath}}
}

// creationExpired resolves a creation whose removal half never arrived.
// A same-inode path still cached elsewhere marks a rename the notifying
// layer reported under a differing name (case-insensitive filesystems);
// otherwise the creation stands alone.
func (c *Correlator) creationExpired(table *lockTable, inode uint64, l *lock, isDir bool) {
	c.mu.Lock()
	if table.awaitingRemoval[inode] != l {
		// Superseded by a newer registration after this timer was
		// already collected for firing.
		c.mu.Unlock()
		return
	}
	delete(table.awaitingRemoval, inode)
	c.mu.Unlock()

	if other, ok := c.cache.OtherPathForInode(inode, l.path); ok {
		c.emit(Event{Kind: renamedKind(isDir), Path: l.path, OldPath: other})
		return
	}
	c.emit(Event{Kind: createdKind(isDir), Path: l.path})
}

// removalExpired resolves a removal whose creation half never arrived.
func (c *Correlator) removalExpired(table *lockTable, inode uint64, l *lock, isDir bool) {
	c.mu.Lock()
	if table.awaitingCreation[inode] != l {
		c.mu.Unlock()
		return
	}
	delete(table.awaitingCreation, inode)
	c.mu.Unlock()

	c.emit(Event{Kind: removedKind(isDir), Path: l.path})
}

func (c *Correlator) table(isDir bool) *lockTable {
	if isDir {
		return c.dirs
	}
	return c.files
}

// Pending returns the number of unresolved locks across both namespaces.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.files.awaitingRemoval) + len(c.files.awaitingCreation) +
		len(c.dirs.awaitingRemoval) + len(c.dirs.awaitingCreation)
}

// Reset cancels every pending resolver, drops both lock namespaces and
// wipes the state cache. Used when a watch session is torn down and
// restarted.
func (c *Correlator) Reset() {
	c.mu.Lock()
	for _, table := range []*lockTable{c.files, c.dirs} {
		for _, l := range table.awaitingRemoval {
			c.timers.Cancel(l.handle)
		}
		for _, l := range table.awaitingCreation {
			c.timers.Cancel(l.handle)
		}
	}
	c.files = newLockTable()
	c.dirs = newLockTable()
	c.mu.Unlock()

	c.cache.Reset()
}
