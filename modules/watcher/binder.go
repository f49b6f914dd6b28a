package watcher

// Binder is the OS-level watch primitive. Notifications carry no
// semantic type, only a best-effort name, and the engine re-stats to
// learn what actually happened.
type Binder interface {
	// Bind starts watching path, optionally including all descendants.
	Bind(path string, recursive bool) (Binding, error)
}

// Binding is one live watch on a root path.
type Binding interface {
	// Names delivers leaf names relative to the bound root; "." means
	// the root itself. The channel closes when the binding ends.
	Names() <-chan string
	// Errors delivers failures of the underlying primitive. The engine
	// maps them to a re-stat of the root rather than propagating them.
	Errors() <-chan error
	// Unbind stops the watch and releases its resources.
	Unbind() error
}
