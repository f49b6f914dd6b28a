package watcher

import (
	"sync"

	"semwatch/models"
)

// observedKey addresses the inode recorded when a given event kind was
// last produced for a given path.
type observedKey struct {
	kind Kind
	path string
}

type observedInode struct {
	inode uint64
	isDir bool
}

// Cache tracks the last known metadata per path and classifies fresh
// observations against it. A path is present exactly while it exists as
// a regular file or directory; the inode index mirrors the cache at all
// times. The correlator reads the observed-inode table immediately after
// each classification pass to learn which inode an event involved.
type Cache struct {
	gateway *StatGateway

	mu       sync.Mutex
	entries  map[string]models.Metadata
	inodes   *inodeIndex
	observed map[observedKey]observedInode
}

// NewCache creates an empty cache reading metadata through gateway.
func NewCache(gateway *StatGateway) *Cache {
	return &Cache{
		gateway:  gateway,
		entries:  make(map[string]models.Metadata),
		inodes:   newInodeIndex(),
		observed: make(map[observedKey]observedInode),
	}
}

// Update re-reads the metadata of path and diffs it against the cached
// state, returning zero, one or two classified events in fixed order.
// The cache, the inode index and the observed-inode table are updated as
// a side effect. Calling Update again with nothing changed on disk
// returns no events.
//
// A path that stops resolving to a supported entry kind counts as
// removed; directories re-observed as directories always classify as a
// removal plus a creation, never as modified — directory content changes
// surface through the children's own events.
func (c *Cache) Update(path string) []Event {
	next := c.gateway.GetStats(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, hadPrev := c.entries[path]

	if hadPrev {
		c.inodes.remove(prev.Inode, path)
		delete(c.entries, path)
	}
	if next != nil {
		c.entries[path] = *next
		c.inodes.add(next.Inode, path)
	}

	switch {
	case !hadPrev && next == nil:
		return nil
	case !hadPrev:
		return []Event{c.record(createdKind(next.IsDir), path, *next)}
	case next == nil:
		return []Event{c.record(removedKind(prev.IsDir), path, prev)}
	case prev.IsFile && next.IsFile:
		if prev == *next {
			// Nothing observable changed; Update is idempotent for
			// files.
			return nil
		}
		return []Event{c.record(KindModifiedFile, path, *next)}
	default:
		return []Event{
			c.record(removedKind(prev.IsDir), path, prev),
			c.record(createdKind(next.IsDir), path, *next),
		}
	}
}

// record notes the inode involved in an emitted event and builds the
// event itself. Caller holds c.mu.
func (c *Cache) record(kind Kind, path string, md models.Metadata) Event {
	c.observed[observedKey{kind: kind, path: path}] = observedInode{
		inode: md.Inode,
		isDir: md.IsDir,
	}

	return Event{Kind: kind, Path: path}
}

// ObservedInode returns the inode recorded when kind was last produced
// for path. A zero inode reads as "no identity available".
func (c *Cache) ObservedInode(kind Kind, path string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obs, ok := c.observed[observedKey{kind: kind, path: path}]
	if !ok || obs.inode == 0 {
		return 0, false
	}
	return obs.inode, true
}

// Has reports whether path currently has cached metadata.
func (c *Cache) Has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[path]
	return ok
}

// Lookup returns the cached metadata for path, if any.
func (c *Cache) Lookup(path string) (models.Metadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	md, ok := c.entries[path]
	return md, ok
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// OtherPathForInode returns some cached path sharing inode other than
// exclude. Used by the correlator as a case-insensitive-filesystem
// rename fallback.
func (c *Cache) OtherPathForInode(inode uint64, exclude string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inodes.otherPath(inode, exclude)
}

// Reset wipes the cache, the inode index and the observed-inode table in
// one step. No concurrent reader observes a partial wipe.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]models.Metadata)
	c.inodes.reset()
	c.observed = make(map[observedKey]observedInode)
}
