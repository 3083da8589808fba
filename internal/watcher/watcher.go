// Package watcher notices writes to the note database made by other
// processes and triggers a store refresh, so live subscriptions see them.
//
// It is used by `dendrite watch` and `dendrite serve`.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the database must be quiet before OnChange runs.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors a database file and its write-ahead log.
type Watcher struct {
	dbPath string
	names  map[string]struct{}

	debounceDelay time.Duration
	logger        *slog.Logger

	// Internal state
	fsWatcher *fsnotify.Watcher
	pending   bool
	lastEvent time.Time
	mu        sync.Mutex

	onChange func(ctx context.Context) error
}

// Config holds configuration options for the Watcher.
type Config struct {
	DatabasePath  string
	DebounceDelay time.Duration // Default: 100ms
	Logger        *slog.Logger
	// OnChange runs after a burst of writes settles. Errors are logged.
	OnChange func(ctx context.Context) error
}

// New creates a new Watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	debounce := cfg.DebounceDelay
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := filepath.Base(cfg.DatabasePath)
	return &Watcher{
		dbPath: cfg.DatabasePath,
		names: map[string]struct{}{
			base:          {},
			base + "-wal": {},
		},
		debounceDelay: debounce,
		logger:        logger,
		onChange:      cfg.OnChange,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	var err error
	w.fsWatcher, err = fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer w.fsWatcher.Close()

	// The -wal file comes and goes, so watch the directory and filter.
	dir := filepath.Dir(w.dbPath)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Debug("watching database", "path", w.dbPath)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Debug("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if _, ok := w.names[filepath.Base(event.Name)]; !ok {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	w.logger.Debug("database event", "op", event.Op.String(), "path", event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = true
	w.lastEvent = time.Now()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.ready() {
				if err := w.onChange(ctx); err != nil && ctx.Err() == nil {
					w.logger.Warn("refresh after database change failed", "error", err)
				}
			}
		}
	}
}

// ready reports whether a change is pending and past the debounce delay,
// clearing it if so.
func (w *Watcher) ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending || time.Since(w.lastEvent) < w.debounceDelay {
		return false
	}
	w.pending = false
	return true
}
