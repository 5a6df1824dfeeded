package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beforest-co/supportbot/internal/models"
)

// Constants for the Redis session store.
const (
	// DefaultKeyPrefix namespaces session keys in a shared Redis instance.
	DefaultKeyPrefix = "supportbot:session:"
	// SessionTTLGrace is added to the idle timeout for the key TTL so Redis
	// expiry is defense in depth behind the manager's own expiry check, never
	// the authority on it.
	SessionTTLGrace = 5 * time.Minute
	// scanBatchSize is the COUNT hint for SCAN during phone listing.
	scanBatchSize = 100
)

// RedisSessionStore persists sessions as JSON values with a per-key TTL.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionStore connects to Redis using the configured URL and verifies
// the connection with a ping.
func NewRedisSessionStore(ctx context.Context, opts ...Option) (*RedisSessionStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisSessionStore invoked", "url_set", cfg.RedisURL != "")

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL not set")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("RedisSessionStore invalid URL", "error", err)
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisSessionStore ping failed", "error", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("RedisSessionStore connected", "addr", redisOpts.Addr, "db", redisOpts.DB)
	return &RedisSessionStore{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

func (s *RedisSessionStore) key(phone string) string {
	return s.keyPrefix + phone
}

// Load fetches and decodes the session for a phone.
func (s *RedisSessionStore) Load(ctx context.Context, phone string) (*models.Session, error) {
	data, err := s.client.Get(ctx, s.key(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		slog.Debug("RedisSessionStore Load not found", "phone", phone)
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("RedisSessionStore Load failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("redis get for %s: %w", phone, err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// A corrupt value is unrecoverable; treat it as absent so a fresh
		// session is created rather than failing every message from the user.
		slog.Warn("RedisSessionStore Load corrupt session value, discarding", "error", err, "phone", phone)
		return nil, ErrNotFound
	}

	slog.Debug("RedisSessionStore Load succeeded", "phone", phone, "session_id", session.ID)
	return &session, nil
}

// Save upserts the session with a TTL so entries self-expire even if the
// sweep never runs.
func (s *RedisSessionStore) Save(ctx context.Context, phone string, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		slog.Error("RedisSessionStore Save marshal failed", "error", err, "phone", phone)
		return fmt.Errorf("marshal session for %s: %w", phone, err)
	}

	ttl := models.SessionIdleTimeout + SessionTTLGrace
	if err := s.client.Set(ctx, s.key(phone), data, ttl).Err(); err != nil {
		slog.Error("RedisSessionStore Save failed", "error", err, "phone", phone)
		return fmt.Errorf("redis set for %s: %w", phone, err)
	}

	slog.Debug("RedisSessionStore Save succeeded", "phone", phone, "session_id", session.ID, "ttl", ttl)
	return nil
}

// Delete removes the session for a phone.
func (s *RedisSessionStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, s.key(phone)).Err(); err != nil {
		slog.Error("RedisSessionStore Delete failed", "error", err, "phone", phone)
		return fmt.Errorf("redis del for %s: %w", phone, err)
	}
	slog.Debug("RedisSessionStore Delete succeeded", "phone", phone)
	return nil
}

// ListActivePhones scans the session key namespace and returns the phone part
// of every key. SCAN keeps this safe on shared instances; the sweep is the
// only caller so the cost is off the hot path.
func (s *RedisSessionStore) ListActivePhones(ctx context.Context) ([]string, error) {
	var phones []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		phones = append(phones, strings.TrimPrefix(iter.Val(), s.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		slog.Error("RedisSessionStore ListActivePhones scan failed", "error", err)
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	slog.Debug("RedisSessionStore ListActivePhones succeeded", "count", len(phones))
	return phones, nil
}

// Close closes the Redis client.
func (s *RedisSessionStore) Close() error {
	slog.Debug("Closing Redis session store")
	return s.client.Close()
}
