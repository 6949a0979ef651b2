package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager owns the lifecycle of the registered channels.
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewManager creates an empty channel manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// RegisterChannel adds a channel under name, replacing any previous one.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// GetChannel returns the channel registered under name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts every registered channel. Channels that fail to start are
// reported together; the ones that started keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	var errs []error
	for _, name := range m.names() {
		slog.Info("starting channel", "channel", name)
		if err := m.channels[name].Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("start %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every running channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slog.Info("stopping all channels")

	var errs []error
	for _, name := range m.names() {
		ch := m.channels[name]
		if !ch.IsRunning() {
			continue
		}
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
		}
	}

	slog.Info("all channels stopped")
	return errors.Join(errs...)
}

// GetStatus reports whether each channel is running.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
