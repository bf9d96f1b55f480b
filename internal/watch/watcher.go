// Package watch restarts the supervised application when watched files
// change. Changes are debounced so one save (or a burst of writes from a
// build) triggers a single restart.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smolin/procwarden/internal/logging"
)

const defaultDebounce = 1500 * time.Millisecond

// Watcher observes a set of paths and invokes a callback after changes
// settle. Directories are watched recursively; hidden directories are
// skipped.
type Watcher struct {
	paths    []string
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the settle window for change bursts. Default is 1500ms.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger overrides the default "watch" module logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher over paths. onChange receives the path of the last
// event in a debounced burst.
func New(paths []string, onChange func(path string), opts ...Option) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		paths:    paths,
		debounce: defaultDebounce,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.GetLogger("watch")
	}
	return w
}

// Start registers the watch paths and begins observing. Directories are
// walked so nested changes are seen too.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	for _, path := range w.paths {
		if err := w.addRecursive(path); err != nil {
			watcher.Close()
			return err
		}
	}

	w.logger.Info("File watcher started", "paths", w.paths, "debounce", w.debounce)
	go w.watch()
	return nil
}

// Stop ends observation and releases the underlying watches.
func (w *Watcher) Stop() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

// addRecursive registers path; for a directory, all non-hidden
// subdirectories as well.
func (w *Watcher) addRecursive(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if hidden(d.Name()) && p != path {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

// watch is the main loop: collect events, restart the debounce timer on
// each, and fire the callback once the burst settles.
func (w *Watcher) watch() {
	var timer *time.Timer
	var timerC <-chan time.Time
	var lastPath string

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Debug("File watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if hidden(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// New directories need their own watch to keep recursion alive.
			if event.Op&fsnotify.Create != 0 {
				if err := w.maybeWatchDir(event.Name); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
				}
			}

			w.logger.Debug("Change detected", "path", event.Name, "op", event.Op.String())
			lastPath = event.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			w.logger.Info("Watched files changed", "path", lastPath)
			w.onChange(lastPath)
			timerC = nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) maybeWatchDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return nil
	}
	return w.addRecursive(path)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
