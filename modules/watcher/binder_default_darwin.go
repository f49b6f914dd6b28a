//go:build darwin

package watcher

func defaultBinder(o *Options) Binder {
	return NewFSEventsBinder(o.Latency)
}
