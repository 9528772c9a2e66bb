// Package reload watches the config directory and the configuration file
// and applies changes to the running server without a restart.
package reload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Dirs are watched non-recursively. Directories that do not exist are
	// skipped.
	Dirs []string

	// Debounce is how long the watcher waits for more changes before
	// emitting an event. Defaults to 500ms if zero.
	Debounce time.Duration

	Logger *slog.Logger
}

func (c WatcherConfig) debounceOrDefault() time.Duration {
	if c.Debounce > 0 {
		return c.Debounce
	}
	return defaultDebounce
}

// EventType describes the type of file change event.
type EventType string

const (
	// EventModified indicates files under a watched directory changed.
	EventModified EventType = "modified"
)

// Event reports a burst of changes.
type Event struct {
	Type EventType

	// Paths lists the changed files, sorted and without duplicates.
	Paths []string
}

// Has reports whether path is among the changed files.
func (e Event) Has(path string) bool {
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	_, found := slices.BinarySearch(e.Paths, abs)
	return found
}

// Watcher turns fsnotify notifications into debounced Events.
type Watcher struct {
	cfg    WatcherConfig
	fsw    *fsnotify.Watcher
	logger *slog.Logger

	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a watcher for cfg.Dirs. At least one directory must
// exist.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("reload: creating watcher: %w", err)
	}

	watched := 0
	for _, dir := range cfg.Dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		if slices.Contains(fsw.WatchList(), abs) {
			continue
		}
		if err := fsw.Add(abs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("reload: directory does not exist, not watching", "dir", abs)
				continue
			}
			_ = fsw.Close()
			return nil, fmt.Errorf("reload: watching %s: %w", abs, err)
		}
		watched++
	}
	if watched == 0 {
		_ = fsw.Close()
		return nil, errors.New("reload: no directory to watch")
	}

	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		logger:  logger,
		events:  make(chan Event),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call multiple times; only the first call
// starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.loop(ctx)
	})
}

// Events returns the channel of debounced change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher and releases the fsnotify handle. Safe to call
// multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if !w.started.Load() {
			_ = w.fsw.Close()
		}
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stopped)
	defer func() { _ = w.fsw.Close() }()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.logger.Warn("reload: watching new directory failed", "dir", ev.Name, "error", err)
					}
				}
			}
			pending[filepath.Clean(ev.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.cfg.debounceOrDefault())
				timerC = timer.C
			} else {
				timer.Reset(w.cfg.debounceOrDefault())
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("reload: watcher error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)

			select {
			case w.events <- Event{Type: EventModified, Paths: paths}:
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			}
		}
	}
}
