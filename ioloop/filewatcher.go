package ioloop

import "github.com/fsnotify/fsnotify"

// FileEvent is a single filesystem change, posted onto the reactor's
// goroutine exactly like a network read.
type FileEvent struct {
	Path string
	Op   fsnotify.Op
}

// FileWatcher bridges an fsnotify watcher's event channel onto a Reactor,
// so file-change callbacks run on the same single goroutine as everything
// else the core schedules -- the same pattern the original framework's
// file_monitor example drives its actor with.
type FileWatcher struct {
	w *fsnotify.Watcher
}

// WatchFiles creates an fsnotify watcher over paths and starts forwarding
// its events (and any watcher-internal errors) to onEvent/onError via
// reactor.Post.
func WatchFiles(reactor *Reactor, paths []string, onEvent func(FileEvent), onError func(error)) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, p := range paths {
		if err := w.Add(p); err != nil {
			w.Close()
			return nil, err
		}
	}

	fw := &FileWatcher{w: w}
	go fw.pump(reactor, onEvent, onError)
	return fw, nil
}

func (fw *FileWatcher) pump(reactor *Reactor, onEvent func(FileEvent), onError func(error)) {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			reactor.Post(func() {
				onEvent(FileEvent{Path: ev.Name, Op: ev.Op})
			})
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			if onError != nil {
				reactor.Post(func() { onError(err) })
			}
		}
	}
}

// Add starts also watching path.
func (fw *FileWatcher) Add(path string) error {
	return fw.w.Add(path)
}

// Remove stops watching path.
func (fw *FileWatcher) Remove(path string) error {
	return fw.w.Remove(path)
}

// Close stops the watcher and its event pump goroutine.
func (fw *FileWatcher) Close() error {
	return fw.w.Close()
}
