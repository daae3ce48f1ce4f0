package internal

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// relevantOps are the operations that can precede a new stable file in a
// source tree. Remove and chmod never do.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename

// Watcher turns raw fsnotify traffic on the source trees into a stream of
// paths worth scheduling a sync for. fsnotify watches are not recursive,
// so directories created under a watched tree are registered on the fly.
type Watcher struct {
	fs      *fsnotify.Watcher
	changes chan string
	errs    chan error
	done    chan struct{}
}

// NewWatcher watches every directory under the given roots.
func NewWatcher(roots []string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:      fs,
		changes: make(chan string, 100),
		errs:    make(chan error, 10),
		done:    make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.watchTree(root); err != nil {
			fs.Close()
			return nil, err
		}
	}

	go w.run()

	return w, nil
}

// watchTree registers root and every directory below it, skipping hidden
// ones the scanner would never enter either.
func (w *Watcher) watchTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&relevantOps == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// Watch new directories before files land in them.
					// The tree itself counts as a change, it may arrive
					// already populated.
					w.watchTree(event.Name)
					w.signal(event.Name)
					continue
				}
			}

			if KindOf(name) == KindUnknown {
				continue
			}
			w.signal(event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
				// Error channel is full, drop the error
			}

		case <-w.done:
			return
		}
	}
}

// signal reports a changed path without ever blocking the event loop. A
// full channel means a sync is already due.
func (w *Watcher) signal(path string) {
	select {
	case w.changes <- path:
	default:
	}
}

// Changes returns the stream of source paths that changed.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Errors returns the channel of watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
