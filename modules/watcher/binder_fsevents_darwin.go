//go:build darwin

package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsevents"
)

// defaultFSEventsLatency matches the coalescing the OS applies when the
// caller passes no explicit latency.
const defaultFSEventsLatency = 100 * time.Millisecond

// fseventsBinder implements Binder on the darwin-native FSEvents API,
// which is recursive by nature and cheaper than one kqueue per
// directory.
type fseventsBinder struct {
	latency time.Duration
}

// NewFSEventsBinder returns the darwin FSEvents-backed Binder. A zero
// latency selects defaultFSEventsLatency.
func NewFSEventsBinder(latency time.Duration) Binder {
	if latency <= 0 {
		latency = defaultFSEventsLatency
	}
	return fseventsBinder{latency: latency}
}

func (f fseventsBinder) Bind(path string, recursive bool) (Binding, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	dev, err := fsevents.DeviceForPath(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve device for path: %w", err)
	}

	es := &fsevents.EventStream{
		Paths:   []string{abs},
		Latency: f.latency,
		Device:  dev,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot,
	}
	es.Start()

	b := &fseventsBinding{
		root:      abs,
		recursive: recursive,
		es:        es,
		names:     make(chan string, 64),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}
	go b.run()

	return b, nil
}

type fseventsBinding struct {
	root      string
	recursive bool
	es        *fsevents.EventStream
	names     chan string
	errs      chan error
	done      chan struct{}
}

func (b *fseventsBinding) Names() <-chan string {
	return b.names
}

func (b *fseventsBinding) Errors() <-chan error {
	return b.errs
}

func (b *fseventsBinding) Unbind() error {
	b.es.Stop()
	close(b.done)
	return nil
}

func (b *fseventsBinding) run() {
	defer close(b.names)
	defer close(b.errs)

	for {
		select {
		case msg, ok := <-b.es.Events:
			if !ok {
				return
			}
			for _, event := range msg {
				path := event.Path
				// FSEvents reports paths without the leading separator.
				if !filepath.IsAbs(path) {
					path = "/" + path
				}

				rel, err := filepath.Rel(b.root, path)
				if err != nil {
					continue
				}
				// The stream is always recursive; filter depth here
				// when the binding is not.
				if !b.recursive && strings.Contains(rel, string(filepath.Separator)) {
					continue
				}

				select {
				case b.names <- rel:
				case <-b.done:
					return
				}
			}
		case <-b.done:
			return
		}
	}
}
