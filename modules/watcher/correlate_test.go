package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semwatch/modules/timers"
)

// sink collects emitted events and signals every arrival.
type sink struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newSink() *sink {
	return &sink{got: make(chan struct{}, 64)}
}

func (s *sink) emit(event Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *sink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Event(nil), s.events...)
}

func (s *sink) awaitCount(t *testing.T, mock *clock.Mock, n int) {
	t.Helper()

	for i := 0; i < 100; i++ {
		s.mu.Lock()
		have := len(s.events)
		s.mu.Unlock()
		if have >= n {
			return
		}

		select {
		case <-s.got:
		case <-time.After(5 * time.Millisecond):
			if mock != nil {
				mock.Add(timers.DefaultTick)
			}
		}
	}
	t.Fatalf("never saw %d events, have %v", n, s.all())
}

func newTestCorrelator(t *testing.T) (*Correlator, *fakeFS, *sink, *clock.Mock) {
	t.Helper()

	cache, fs := newTestCache(t)
	mock := clock.NewMock()
	mux := timers.New(mock, timers.DefaultTick)
	out := newSink()

	return NewCorrelator(cache, mux, DefaultRenameTimeout, out.emit), fs, out, mock
}

func TestRenameRemovalFirst(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")

	fs.remove("/a")
	fs.set("/b", fileMD(42, 1))
	c.Cache().Update("/a")
	c.Cache().Update("/b")

	c.Process(KindRemovedFile, "/a")
	c.Process(KindCreatedFile, "/b")

	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindRenamedFile, Path: "/b", OldPath: "/a"}}, out.all())
	assert.Equal(t, 0, c.Pending(), "resolution must clear both locks")

	// No stray removed or created may surface later.
	mock.Add(2 * DefaultRenameTimeout)
	mock.Add(timers.DefaultTick)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, out.all(), 1)
}

func TestRenameCreationFirst(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")

	fs.remove("/a")
	fs.set("/b", fileMD(42, 1))
	c.Cache().Update("/b")
	c.Cache().Update("/a")

	c.Process(KindCreatedFile, "/b")
	c.Process(KindRemovedFile, "/a")

	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindRenamedFile, Path: "/b", OldPath: "/a"}}, out.all())
	assert.Equal(t, 0, c.Pending())
}

func TestRemovalTimeoutFallsBackToRemoved(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")
	fs.remove("/a")
	c.Cache().Update("/a")

	c.Process(KindRemovedFile, "/a")

	// Nothing fires before the timeout.
	mock.Add(DefaultRenameTimeout - timers.DefaultTick)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, out.all())

	// At timeout plus at most one tick of slop, the removal stands.
	mock.Add(2 * timers.DefaultTick)
	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindRemovedFile, Path: "/a"}}, out.all())
	assert.Equal(t, 0, c.Pending())
}

func TestCreationTimeoutFallsBackToCreated(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/b", fileMD(42, 1))
	c.Cache().Update("/b")

	c.Process(KindCreatedFile, "/b")

	mock.Add(DefaultRenameTimeout + timers.DefaultTick)
	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindCreatedFile, Path: "/b"}}, out.all())
}

func TestCreationTimeoutDetectsCaseOnlyRename(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	// Case-insensitive filesystems report the new casing while the old
	// one is still cached under the same inode; no removal ever arrives.
	fs.set("/A", fileMD(42, 1))
	c.Cache().Update("/A")
	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")

	c.Process(KindCreatedFile, "/a")

	mock.Add(DefaultRenameTimeout + timers.DefaultTick)
	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindRenamedFile, Path: "/a", OldPath: "/A"}}, out.all())
}

func TestSamePathRepublishBecomesModified(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")

	// Removed and recreated in place, same inode, still present.
	fs.remove("/a")
	c.Cache().Update("/a")
	fs.set("/a", fileMD(42, 2))
	c.Cache().Update("/a")

	c.Process(KindRemovedFile, "/a")
	c.Process(KindCreatedFile, "/a")

	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindModifiedFile, Path: "/a"}}, out.all())
	assert.Equal(t, 0, c.Pending())
}

func TestSamePathRepublishGoneAgainStaysSilent(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")
	fs.remove("/a")
	c.Cache().Update("/a")
	fs.set("/a", fileMD(42, 2))
	c.Cache().Update("/a")
	fs.remove("/a")
	c.Cache().Update("/a")

	c.Process(KindRemovedFile, "/a")
	c.Process(KindCreatedFile, "/a")

	// The pair matched but the path is gone again: nothing is emitted
	// and nothing stays locked.
	mock.Add(DefaultRenameTimeout + timers.DefaultTick)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, out.all())
	assert.Equal(t, 0, c.Pending())
}

func TestNoInodeEmitsImmediately(t *testing.T) {
	c, _, out, _ := newTestCorrelator(t)

	// No classification recorded an inode for these events.
	c.Process(KindCreatedFile, "/x")
	c.Process(KindRemovedDir, "/y")

	require.Equal(t, []Event{
		{Kind: KindCreatedFile, Path: "/x"},
		{Kind: KindRemovedDir, Path: "/y"},
	}, out.all())
}

func TestFileAndDirNamespacesAreIndependent(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	// A removed file and a created directory sharing an inode number
	// must not pair up across namespaces.
	fs.set("/f", fileMD(42, 1))
	c.Cache().Update("/f")
	fs.remove("/f")
	c.Cache().Update("/f")

	fs.set("/d", dirMD(42))
	c.Cache().Update("/d")

	c.Process(KindRemovedFile, "/f")
	c.Process(KindCreatedDir, "/d")

	mock.Add(DefaultRenameTimeout + timers.DefaultTick)
	out.awaitCount(t, mock, 2)

	assert.ElementsMatch(t, []Event{
		{Kind: KindRemovedFile, Path: "/f"},
		{Kind: KindCreatedDir, Path: "/d"},
	}, out.all())
}

func TestDirReobservationCollapsesToModifiedDir(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/d", dirMD(9))
	c.Cache().Update("/d")

	// A directory re-observed as a directory classifies as a removal
	// plus a creation; feeding both through the protocol collapses them
	// back into one modified-dir while the path is still cached.
	events := c.Cache().Update("/d")
	require.Equal(t, []Kind{KindRemovedDir, KindCreatedDir}, kinds(events))

	for _, event := range events {
		c.Process(event.Kind, event.Path)
	}

	out.awaitCount(t, mock, 1)
	require.Equal(t, []Event{{Kind: KindModifiedDir, Path: "/d"}}, out.all())
	assert.Equal(t, 0, c.Pending())
}

func TestOverwriteReplacesParkedLock(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")
	fs.remove("/a")
	c.Cache().Update("/a")

	// Two removals for the same inode: the second registration
	// overwrites the first, it does not queue.
	c.Process(KindRemovedFile, "/a")
	c.Process(KindRemovedFile, "/a")
	assert.Equal(t, 1, c.Pending())

	mock.Add(DefaultRenameTimeout + timers.DefaultTick)
	out.awaitCount(t, mock, 1)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, out.all(), 1, "an overwritten lock must not fire twice")
}

func TestCorrelatorReset(t *testing.T) {
	c, fs, out, mock := newTestCorrelator(t)

	fs.set("/a", fileMD(42, 1))
	c.Cache().Update("/a")
	fs.remove("/a")
	c.Cache().Update("/a")
	c.Process(KindRemovedFile, "/a")
	require.Equal(t, 1, c.Pending())

	c.Reset()

	assert.Equal(t, 0, c.Pending())
	assert.False(t, c.Cache().Has("/a"))

	mock.Add(2 * DefaultRenameTimeout)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, out.all(), "reset must cancel pending resolvers")
}
