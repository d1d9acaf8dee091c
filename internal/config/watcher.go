package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/feedforge/feedforge/internal/logging"
)

// Watcher holds the live configuration snapshot and reloads it when
// the config file changes on disk. The orchestrator consults it at run
// admission so an autonomy toggle-off is observed even by a trigger
// that was already in flight.
type Watcher struct {
	loader *Loader
	logger *logging.Logger

	mu  sync.RWMutex
	cfg *Config
}

// NewWatcher creates a watcher seeded with an initial snapshot.
func NewWatcher(loader *Loader, initial *Config, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		loader: loader,
		logger: logger,
		cfg:    initial,
	}
}

// Current returns the live configuration snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// AutonomyEnabled reports the live autonomous-mode flag.
func (w *Watcher) AutonomyEnabled() bool {
	return w.Current().Autonomy.Enabled
}

// set replaces the snapshot. Exported behavior is reload-on-change;
// tests drive this through Reload.
func (w *Watcher) set(cfg *Config) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
}

// Reload re-reads configuration from disk. A failed reload keeps the
// previous snapshot.
func (w *Watcher) Reload() error {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous snapshot", "error", err)
		return err
	}
	w.set(cfg)
	w.logger.Info("config reloaded", "autonomy_enabled", cfg.Autonomy.Enabled)
	return nil
}

// Watch blocks until ctx is done, reloading on config file writes.
// With no resolved config file it exits immediately.
func (w *Watcher) Watch(ctx context.Context) error {
	path := w.loader.ConfigFileUsed()
	if path == "" {
		w.logger.Debug("no config file in use, watcher idle")
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = w.Reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}
