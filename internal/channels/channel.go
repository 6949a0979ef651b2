// Package channels holds what chat transports share: the Channel lifecycle
// and outbound rate limiting.
package channels

import (
	"context"
	"sync/atomic"

	"github.com/mattn/go-runewidth"
)

// Channel is a running chat transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// BaseChannel provides the name and running flag for Channel implementations.
type BaseChannel struct {
	name    string
	running atomic.Bool
}

// NewBaseChannel creates a BaseChannel.
func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Truncate shortens s to at most maxWidth display columns for log previews.
func Truncate(s string, maxWidth int) string {
	return runewidth.Truncate(s, maxWidth, "...")
}
