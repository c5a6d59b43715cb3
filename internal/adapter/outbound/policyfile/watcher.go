package policyfile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the policy directory to watch.
	Dir string
	// DebounceInterval is how long to wait for a quiet period before
	// firing a reload after detecting a change.
	DebounceInterval time.Duration
	// SkipHidden skips dotfiles and dot-directories.
	SkipHidden bool
}

// DefaultWatcherConfig returns sane defaults: 100ms debounce, hidden
// entries skipped.
func DefaultWatcherConfig(dir string) WatcherConfig {
	return WatcherConfig{
		Dir:              dir,
		DebounceInterval: 100 * time.Millisecond,
		SkipHidden:       true,
	}
}

// Watcher watches a policy directory non-recursively at the top level
// only for .yaml/.yml changes, debouncing bursts of events into a
// single reload callback. Subdirectories are never descended into or
// registered with fsnotify.
type Watcher struct {
	fsw      *fsnotify.Watcher
	config   WatcherConfig
	logger   *slog.Logger
	debounce *debouncer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a Watcher for config.Dir. The returned Watcher
// must have Watch called exactly once.
func NewWatcher(config WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsw:      fsw,
		config:   config,
		logger:   logger,
		debounce: newDebouncer(config.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks, watching for changes under config.Dir and invoking
// onReload (debounced) whenever a relevant .yaml/.yml event fires. It
// returns when ctx is cancelled or Stop is called.
func (w *Watcher) Watch(ctx context.Context, onReload func()) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.addDirectories(w.config.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.config.Dir, err)
	}

	w.logger.Info("policy watcher started", "dir", w.config.Dir, "debounce_ms", w.config.DebounceInterval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}
			w.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())
			w.debounce.trigger(onReload)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("policy watcher error", "error", err)
		}
	}
}

// Stop halts the watch loop and releases the underlying fsnotify
// watcher. Safe to call once, after Watch has been started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.debounce.stop()
		return w.fsw.Close()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.debounce.stop()
	return w.fsw.Close()
}

func (w *Watcher) addDirectories(root string) error {
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("watch directory %q: %w", root, err)
	}
	return nil
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if w.config.SkipHidden && strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return hasValidExtension(event.Name)
}

// debouncer collapses a burst of triggers into a single callback
// invocation, fired after interval has passed with no further trigger.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopCh   chan struct{}
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval, stopCh: make(chan struct{})}
}

func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
			callback()
		}
	})
}

func (d *debouncer) stop() {
	close(d.stopCh)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
