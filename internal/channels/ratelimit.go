package channels

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedChats caps the number of per-chat limiters kept in memory.
	maxTrackedChats = 4096

	// idleEvict is how long an unused limiter is kept.
	idleEvict = 10 * time.Minute
)

type limiterEntry struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// ChatLimiter paces outbound calls per chat. Telegram allows roughly 20
// messages per minute in a group; bursts beyond that are delayed, not dropped.
// Safe for concurrent use.
type ChatLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	entries map[int64]*limiterEntry
}

// NewChatLimiter allows perMinute calls per chat with a burst of the same
// size. perMinute <= 0 disables limiting.
func NewChatLimiter(perMinute int) *ChatLimiter {
	l := &ChatLimiter{entries: make(map[int64]*limiterEntry)}
	if perMinute <= 0 {
		l.every = rate.Inf
		l.burst = 1
	} else {
		l.every = rate.Limit(float64(perMinute) / 60)
		l.burst = perMinute
	}
	return l
}

// Wait blocks until chatID may send or ctx is done.
func (l *ChatLimiter) Wait(ctx context.Context, chatID int64) error {
	return l.limiter(chatID).Wait(ctx)
}

// Allow reports whether chatID may send now, consuming a token if so.
func (l *ChatLimiter) Allow(chatID int64) bool {
	return l.limiter(chatID).Allow()
}

func (l *ChatLimiter) limiter(chatID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.entries) >= maxTrackedChats {
		for k, e := range l.entries {
			if now.Sub(e.lastUsed) >= idleEvict {
				delete(l.entries, k)
			}
		}
		// hard eviction if still at cap
		for len(l.entries) >= maxTrackedChats {
			for k := range l.entries {
				delete(l.entries, k)
				break
			}
		}
	}

	e, ok := l.entries[chatID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.entries[chatID] = e
	}
	e.lastUsed = now
	return e.lim
}
