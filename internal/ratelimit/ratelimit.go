// Package ratelimit provides the fixed-window rate limiters that protect the
// support bot from message floods and runaway AI spend.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default limits for the three limiters the dispatcher uses.
const (
	// DefaultMessageLimit caps inbound messages per user per window.
	DefaultMessageLimit = 10
	// DefaultMessageWindow is the per-user message window.
	DefaultMessageWindow = 60 * time.Second
	// DefaultMessageBlock is how long a user stays blocked after exceeding the message limit.
	DefaultMessageBlock = 5 * time.Minute

	// DefaultAILimit caps AI requests per user per window.
	DefaultAILimit = 20
	// DefaultAIWindow is the per-user AI window.
	DefaultAIWindow = time.Hour
	// DefaultAIBlock is how long a user stays blocked after exceeding the AI limit.
	DefaultAIBlock = 30 * time.Minute

	// DefaultGlobalLimit caps total messages across all users per window.
	DefaultGlobalLimit = 1000
	// DefaultGlobalWindow is the global window.
	DefaultGlobalWindow = time.Minute
	// DefaultGlobalBlock is how long the global limiter stays blocked.
	DefaultGlobalBlock = time.Minute
)

// globalKey is the single bucket key used by the global limiter.
const globalKey = "global"

// Result reports the outcome of a limiter check. RetryAfter is only
// meaningful when Allowed is false.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// bucket tracks one fixed window for one key.
type bucket struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Limiter is a fixed-window rate limiter with a block penalty: once a key
// exceeds the limit inside a window, it stays blocked for the configured
// block duration rather than just until the window rolls over.
type Limiter struct {
	limit  int
	window time.Duration
	block  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter creates a limiter allowing limit events per window per key, with
// a block penalty applied once the limit is exceeded.
func NewLimiter(limit int, window, block time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		block:   block,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one event for key and reports whether it was within the
// limit. The first rejected event starts the block penalty.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}

	if now.Before(b.blockedUntil) {
		return Result{Allowed: false, RetryAfter: b.blockedUntil.Sub(now)}
	}

	if now.Sub(b.windowStart) >= l.window {
		b.windowStart = now
		b.count = 0
	}

	b.count++
	if b.count > l.limit {
		b.blockedUntil = now.Add(l.block)
		return Result{Allowed: false, RetryAfter: l.block}
	}

	return Result{Allowed: true}
}

// Remaining reports how many events key has left in its current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return l.limit
	}

	now := l.now()
	if now.Before(b.blockedUntil) {
		return 0
	}
	if now.Sub(b.windowStart) >= l.window {
		return l.limit
	}

	remaining := l.limit - b.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep drops buckets that are idle and unblocked, bounding memory over long
// uptimes. Returns the number of buckets removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window && !now.Before(b.blockedUntil) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Manager bundles the three limiters the dispatcher consults for every
// inbound message.
type Manager struct {
	messages *Limiter
	ai       *Limiter
	global   *Limiter
}

// NewManager creates a Manager with the default limits.
func NewManager() *Manager {
	return &Manager{
		messages: NewLimiter(DefaultMessageLimit, DefaultMessageWindow, DefaultMessageBlock),
		ai:       NewLimiter(DefaultAILimit, DefaultAIWindow, DefaultAIBlock),
		global:   NewLimiter(DefaultGlobalLimit, DefaultGlobalWindow, DefaultGlobalBlock),
	}
}

// CheckMessage consumes one global slot and one per-user message slot. The
// global limiter is consulted first so a flood cannot exhaust per-user
// budgets. When rejected, the returned message is ready to send to the user.
func (m *Manager) CheckMessage(phone string) (Result, string) {
	if res := m.global.Allow(globalKey); !res.Allowed {
		slog.Warn("Global rate limit exceeded", "retry_after", res.RetryAfter)
		return res, "🔄 System temporarily busy. Please try again in a moment."
	}

	if res := m.messages.Allow(phone); !res.Allowed {
		slog.Warn("Message rate limit exceeded", "phone", phone, "retry_after", res.RetryAfter)
		seconds := int(res.RetryAfter.Round(time.Second).Seconds())
		return res, fmt.Sprintf("⚠️ Too many messages. Please wait %d seconds.", seconds)
	}

	slog.Debug("Message rate limit check passed", "phone", phone, "remaining", m.messages.Remaining(phone))
	return Result{Allowed: true}, ""
}

// CheckAI consumes one per-user AI slot. Called only on the AI fallback path,
// not for statically routed messages.
func (m *Manager) CheckAI(phone string) (Result, string) {
	res := m.ai.Allow(phone)
	if !res.Allowed {
		slog.Warn("AI rate limit exceeded", "phone", phone, "retry_after", res.RetryAfter)
		minutes := int(res.RetryAfter.Round(time.Minute).Minutes())
		if minutes < 1 {
			minutes = 1
		}
		return res, fmt.Sprintf("🤖 AI service temporarily limited. Please wait %d minutes.", minutes)
	}
	return res, ""
}

// Sweep trims idle buckets on all three limiters.
func (m *Manager) Sweep() {
	removed := m.messages.Sweep() + m.ai.Sweep() + m.global.Sweep()
	if removed > 0 {
		slog.Debug("Rate limit buckets swept", "removed", removed)
	}
}
