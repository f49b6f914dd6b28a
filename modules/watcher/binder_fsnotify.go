package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBinder implements Binder on fsnotify, which covers every
// platform. fsnotify watches single directories, so recursive bindings
// walk the tree at bind time and add newly created directories as their
// creation notifications arrive.
type fsnotifyBinder struct{}

// NewFSNotifyBinder returns the portable fsnotify-backed Binder.
func NewFSNotifyBinder() Binder {
	return fsnotifyBinder{}
}

func (fsnotifyBinder) Bind(path string, recursive bool) (Binding, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	b := &fsnotifyBinding{
		root:      path,
		recursive: recursive,
		fw:        fw,
		names:     make(chan string, 64),
		errs:      make(chan error, 1),
	}

	if recursive {
		if err := b.addTree(path); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}

	go b.run()

	return b, nil
}

type fsnotifyBinding struct {
	root      string
	recursive bool
	fw        *fsnotify.Watcher
	names     chan string
	errs      chan error
}

func (b *fsnotifyBinding) Names() <-chan string {
	return b.names
}

func (b *fsnotifyBinding) Errors() <-chan error {
	return b.errs
}

func (b *fsnotifyBinding) Unbind() error {
	return b.fw.Close()
}

func (b *fsnotifyBinding) run() {
	defer close(b.names)
	defer close(b.errs)

	for {
		select {
		case event, ok := <-b.fw.Events:
			if !ok {
				return
			}

			// New directories need their own watch before activity
			// inside them can be seen.
			if b.recursive && event.Op&fsnotify.Create != 0 {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					_ = b.addTree(event.Name)
				}
			}

			rel, err := filepath.Rel(b.root, event.Name)
			if err != nil {
				continue
			}
			b.names <- rel

		case err, ok := <-b.fw.Errors:
			if !ok {
				return
			}
			// Every error means the same thing downstream (re-stat the
			// root), so a backed-up error channel can drop them.
			select {
			case b.errs <- err:
			default:
			}
		}
	}
}

// addTree watches dir and every directory below it.
func (b *fsnotifyBinding) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk; skip rather than fail.
			return nil
		}
		if !entry.IsDir() {
			return nil
		}

		if err := b.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
