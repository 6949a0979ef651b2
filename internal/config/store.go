package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store owns the live configuration. Readers call Current for a consistent
// snapshot; Reload swaps in a freshly loaded one atomically.
type Store struct {
	path string
	cur  atomic.Pointer[Config]

	mu        sync.Mutex // serializes reloads and listener registration
	listeners []func(*Config)
}

// NewStore loads path and returns a store holding it.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.cur.Store(cfg)
	return s, nil
}

// NewStaticStore wraps an already built config. Reload re-reads path if set.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

// Path returns the backing config file path.
func (s *Store) Path() string { return s.path }

// Current returns the active snapshot.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// OnReload registers fn to run with each newly installed snapshot.
func (s *Store) OnReload(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the config file. On error the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("config store has no backing file")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(cfg)
	for _, fn := range s.listeners {
		fn(cfg)
	}
	slog.Info("config reloaded", "path", s.path)
	return nil
}

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 300 * time.Millisecond

// Watch reloads the config whenever the file changes, until ctx is done.
// The parent directory is watched so atomic rename-on-save is picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	slog.Info("watching config for changes", "path", abs)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := s.Reload(); err != nil {
					slog.Warn("config reload failed, keeping previous", "path", abs, "error", err)
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
