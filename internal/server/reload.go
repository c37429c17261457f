package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the reloader waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Reloader watches the config and catalog files and triggers hot-reload.
type Reloader struct {
	watcher  *fsnotify.Watcher
	server   *Server
	paths    []string
	debounce time.Duration
	logger   *zap.Logger
}

// NewReloader creates a file watcher for the given paths. Empty and missing
// paths are skipped.
func NewReloader(server *Server, paths []string) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	var watched []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", p, err)
		}
		watched = append(watched, p)
	}

	return &Reloader{
		watcher:  watcher,
		server:   server,
		paths:    watched,
		debounce: DefaultDebounce,
		logger:   server.logger,
	}, nil
}

// Paths returns the files being watched.
func (r *Reloader) Paths() []string { return r.paths }

// Run watches for file changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				stop()
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				stop()
				timer = time.NewTimer(r.debounce)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			if err := r.server.Reload(); err != nil {
				r.logger.Error("hot-reload failed", zap.Error(err))
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				stop()
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}
