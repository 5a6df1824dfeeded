// Package store provides session storage backends for the support bot.
//
// The primary backend is Redis with per-key TTLs; an in-memory store serves as
// the degraded path when Redis is unreachable and as the backend for tests.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/beforest-co/supportbot/internal/models"
)

// ErrNotFound is returned when no session exists for a phone. Callers must
// treat this as a normal outcome, not a failure.
var ErrNotFound = errors.New("session not found")

// SessionStore persists one session per phone identifier.
type SessionStore interface {
	// Load fetches the session for a phone. Returns ErrNotFound when absent.
	Load(ctx context.Context, phone string) (*models.Session, error)
	// Save upserts the session for a phone.
	Save(ctx context.Context, phone string, session *models.Session) error
	// Delete removes the session for a phone. Deleting an absent session is not an error.
	Delete(ctx context.Context, phone string) error
	// ListActivePhones returns the phones with a stored session. Used by the
	// maintenance sweep only, never by the message hot path.
	ListActivePhones(ctx context.Context) ([]string, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for session stores.
type Opts struct {
	RedisURL  string // Redis connection URL (redis://...)
	KeyPrefix string // key namespace prefix
}

// Option defines a configuration option for session stores.
type Option func(*Opts)

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option {
	return func(o *Opts) { o.RedisURL = url }
}

// WithKeyPrefix overrides the default key namespace prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// DetectDSNType reports "postgres" for PostgreSQL-style connection strings and
// "sqlite3" otherwise. Shared by the conversation log, template service, and
// WhatsApp client so all modules agree on driver selection.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// cloneSession returns a deep copy so callers cannot alias stored state.
func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.History != nil {
		out.History = make([]models.HistoryEntry, len(s.History))
		copy(out.History, s.History)
	}
	return &out
}
