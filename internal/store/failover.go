package store

import (
	"context"
	"errors"
	"log/slog"

	"github.com/beforest-co/supportbot/internal/models"
)

// FailoverSessionStore layers a primary store (Redis) over an in-process
// fallback. Primary unavailability degrades reads and writes to the fallback
// with a warning instead of failing the request: for soft session state,
// availability wins over durability.
//
// Every successful primary read and every write also updates the fallback, so
// a mid-conversation primary outage does not lose the session.
type FailoverSessionStore struct {
	primary  SessionStore
	fallback SessionStore
}

// NewFailoverSessionStore wraps primary with an in-memory fallback.
func NewFailoverSessionStore(primary SessionStore) *FailoverSessionStore {
	return &FailoverSessionStore{
		primary:  primary,
		fallback: NewInMemorySessionStore(),
	}
}

// Load reads from the primary, falling back to the in-process store when the
// primary errors. ErrNotFound from the primary is authoritative unless the
// fallback has a newer copy from a degraded write.
func (s *FailoverSessionStore) Load(ctx context.Context, phone string) (*models.Session, error) {
	session, err := s.primary.Load(ctx, phone)
	if err == nil {
		// Refresh the fallback so it stays usable if the primary drops later.
		if saveErr := s.fallback.Save(ctx, phone, session); saveErr != nil {
			slog.Warn("FailoverSessionStore fallback refresh failed", "error", saveErr, "phone", phone)
		}
		return session, nil
	}

	if errors.Is(err, ErrNotFound) {
		// The primary may have restarted or expired the key while a degraded
		// write landed only in the fallback.
		if fbSession, fbErr := s.fallback.Load(ctx, phone); fbErr == nil {
			slog.Debug("FailoverSessionStore serving fallback copy after primary miss", "phone", phone)
			return fbSession, nil
		}
		return nil, ErrNotFound
	}

	slog.Warn("FailoverSessionStore primary load failed, using fallback", "error", err, "phone", phone)
	return s.fallback.Load(ctx, phone)
}

// Save writes to both stores. A primary failure is absorbed as long as the
// fallback write succeeds, so a single dispatch path never regresses.
func (s *FailoverSessionStore) Save(ctx context.Context, phone string, session *models.Session) error {
	if err := s.fallback.Save(ctx, phone, session); err != nil {
		return err
	}
	if err := s.primary.Save(ctx, phone, session); err != nil {
		slog.Warn("FailoverSessionStore primary save failed, fallback holds session", "error", err, "phone", phone)
	}
	return nil
}

// Delete removes the session from both stores.
func (s *FailoverSessionStore) Delete(ctx context.Context, phone string) error {
	if err := s.fallback.Delete(ctx, phone); err != nil {
		return err
	}
	if err := s.primary.Delete(ctx, phone); err != nil {
		slog.Warn("FailoverSessionStore primary delete failed", "error", err, "phone", phone)
	}
	return nil
}

// ListActivePhones merges the phones known to either store.
func (s *FailoverSessionStore) ListActivePhones(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var phones []string

	primaryPhones, err := s.primary.ListActivePhones(ctx)
	if err != nil {
		slog.Warn("FailoverSessionStore primary list failed", "error", err)
	}
	for _, phone := range primaryPhones {
		if _, ok := seen[phone]; !ok {
			seen[phone] = struct{}{}
			phones = append(phones, phone)
		}
	}

	fallbackPhones, err := s.fallback.ListActivePhones(ctx)
	if err != nil {
		return phones, err
	}
	for _, phone := range fallbackPhones {
		if _, ok := seen[phone]; !ok {
			seen[phone] = struct{}{}
			phones = append(phones, phone)
		}
	}
	return phones, nil
}

// Close closes both stores.
func (s *FailoverSessionStore) Close() error {
	if err := s.fallback.Close(); err != nil {
		slog.Warn("FailoverSessionStore fallback close failed", "error", err)
	}
	return s.primary.Close()
}
