// Package session owns the lifecycle of per-phone conversation sessions.
//
// The Manager is the only component allowed to mutate sessions; conversation
// handlers read sessions and request changes through it. All operations for a
// single phone are serialized by a per-phone mutex so two rapid messages from
// the same user cannot interleave read-modify-write cycles and lose updates.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/store"
	"github.com/beforest-co/supportbot/internal/util"
)

// Manager creates, loads, mutates, and expires sessions on top of a SessionStore.
type Manager struct {
	store store.SessionStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewManager creates a session manager backed by the given store.
func NewManager(st store.SessionStore) *Manager {
	slog.Debug("Creating session Manager")
	return &Manager{
		store: st,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

// phoneLock returns the mutex serializing operations for one phone. Lock
// entries are retained for the process lifetime; the per-phone footprint is a
// single mutex, and reuse keeps the serialization guarantee simple.
func (m *Manager) phoneLock(phone string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[phone]
	if !ok {
		l = &sync.Mutex{}
		m.locks[phone] = l
	}
	return l
}

// GetOrCreate returns the authoritative session for a phone, creating a fresh
// one when none exists or the stored one has expired. Every call bumps
// LastActivity and persists, so the session's idle clock restarts on any touch.
func (m *Manager) GetOrCreate(ctx context.Context, phone string) (*models.Session, error) {
	lock := m.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()
	return m.getOrCreateLocked(ctx, phone)
}

// getOrCreateLocked is GetOrCreate without the per-phone lock, for use inside
// operations that already hold it.
func (m *Manager) getOrCreateLocked(ctx context.Context, phone string) (*models.Session, error) {
	now := m.now()

	session, err := m.store.Load(ctx, phone)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load session for %s: %w", phone, err)
	}

	if err == nil && session.Expired(now) {
		slog.Info("Session expired, creating replacement", "phone", phone, "old_session_id", session.ID,
			"idle", now.Sub(session.LastActivity).Round(time.Second))
		if delErr := m.store.Delete(ctx, phone); delErr != nil {
			slog.Warn("Failed to delete expired session", "error", delErr, "phone", phone)
		}
		// Only identity data carries over; the conversation starts fresh.
		replacement := m.newSession(phone, now)
		replacement.UserName = session.UserName
		replacement.Flags.IsFirstTime = false
		session = replacement
		err = nil
		if saveErr := m.store.Save(ctx, phone, session); saveErr != nil {
			return nil, fmt.Errorf("save replacement session for %s: %w", phone, saveErr)
		}
		return session, nil
	}

	if errors.Is(err, store.ErrNotFound) {
		session = m.newSession(phone, now)
		slog.Info("Session created", "phone", phone, "session_id", session.ID)
		if saveErr := m.store.Save(ctx, phone, session); saveErr != nil {
			return nil, fmt.Errorf("save new session for %s: %w", phone, saveErr)
		}
		return session, nil
	}

	session.LastActivity = now
	if saveErr := m.store.Save(ctx, phone, session); saveErr != nil {
		return nil, fmt.Errorf("save touched session for %s: %w", phone, saveErr)
	}
	return session, nil
}

func (m *Manager) newSession(phone string, now time.Time) *models.Session {
	return &models.Session{
		ID:           "sess_" + uuid.NewString(),
		Phone:        phone,
		StartTime:    now,
		LastActivity: now,
		Status:       models.SessionStatusActive,
		Context: models.SessionContext{
			CurrentFlow: models.FlowWelcome,
			MenuLevel:   1,
		},
		Flags: models.SessionFlags{IsFirstTime: true},
	}
}

// SetContext shallow-merges the patch into the session context, bumps
// LastActivity, and persists. Returns the updated session.
func (m *Manager) SetContext(ctx context.Context, phone string, patch models.ContextPatch) (*models.Session, error) {
	lock := m.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getOrCreateLocked(ctx, phone)
	if err != nil {
		return nil, err
	}

	patch.Apply(&session.Context)
	session.LastActivity = m.now()
	if err := m.store.Save(ctx, phone, session); err != nil {
		return nil, fmt.Errorf("save context for %s: %w", phone, err)
	}

	slog.Debug("Session context updated", "phone", phone, "session_id", session.ID,
		"flow", session.Context.CurrentFlow, "menu_level", session.Context.MenuLevel)
	return session, nil
}

// SetUserName records the user's display name on the session. Name identity
// survives session expiry, so this is worth persisting even mid-conversation.
func (m *Manager) SetUserName(ctx context.Context, phone, name string) error {
	if name == "" {
		return nil
	}
	lock := m.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getOrCreateLocked(ctx, phone)
	if err != nil {
		return err
	}
	if session.UserName == name {
		return nil
	}
	session.UserName = name
	if err := m.store.Save(ctx, phone, session); err != nil {
		return fmt.Errorf("save user name for %s: %w", phone, err)
	}
	return nil
}

// AppendHistory appends one conversation turn, evicting the oldest entry when
// the history exceeds the cap. Returns the appended entry.
func (m *Manager) AppendHistory(ctx context.Context, phone, content string, role models.MessageRole) (*models.HistoryEntry, error) {
	lock := m.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getOrCreateLocked(ctx, phone)
	if err != nil {
		return nil, err
	}

	entry := models.HistoryEntry{
		ID:        util.GenerateMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: m.now(),
	}
	session.History = append(session.History, entry)
	if overflow := len(session.History) - models.MaxHistoryEntries; overflow > 0 {
		session.History = session.History[overflow:]
	}
	session.LastActivity = m.now()

	if err := m.store.Save(ctx, phone, session); err != nil {
		return nil, fmt.Errorf("save history for %s: %w", phone, err)
	}

	slog.Debug("Session history appended", "phone", phone, "role", role, "history_len", len(session.History))
	return &entry, nil
}

// MarkEscalated flags the session for human attention. The flag is a stateful
// marker; no handoff channel is notified here.
func (m *Manager) MarkEscalated(ctx context.Context, phone, reason string) error {
	lock := m.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.getOrCreateLocked(ctx, phone)
	if err != nil {
		return err
	}

	session.Status = models.SessionStatusEscalated
	session.Flags.EscalationRequested = true
	session.Flags.EscalationReason = reason
	session.LastActivity = m.now()

	if err := m.store.Save(ctx, phone, session); err != nil {
		return fmt.Errorf("save escalated session for %s: %w", phone, err)
	}

	slog.Info("Session escalated", "phone", phone, "session_id", session.ID, "reason", reason)
	return nil
}

// EndSession closes and deletes the session, used when an escalated
// conversation is resolved out of band.
func (m *Manager) EndSession(ctx context.Context, phone string) error {
	lock := m.phoneLock(phone)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(ctx, phone); err != nil {
		return fmt.Errorf("delete session for %s: %w", phone, err)
	}
	slog.Info("Session ended", "phone", phone)
	return nil
}

// IsExpired reports whether the session has been idle past the timeout.
func (m *Manager) IsExpired(session *models.Session) bool {
	return session.Expired(m.now())
}

// StartSweep runs the periodic expired-session sweep until the context is
// cancelled. The sweep is advisory cleanup: correctness of expiry never
// depends on it because every read re-checks IsExpired.
func (m *Manager) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(models.SessionSweepInterval)
		defer ticker.Stop()
		slog.Info("Session sweep started", "interval", models.SessionSweepInterval)

		for {
			select {
			case <-ticker.C:
				m.sweepOnce(ctx)
			case <-ctx.Done():
				slog.Debug("Session sweep stopping")
				return
			}
		}
	}()
}

// sweepOnce deletes every stored session idle past the timeout.
func (m *Manager) sweepOnce(ctx context.Context) {
	phones, err := m.store.ListActivePhones(ctx)
	if err != nil {
		slog.Warn("Session sweep list failed", "error", err)
		return
	}

	cleaned := 0
	for _, phone := range phones {
		lock := m.phoneLock(phone)
		lock.Lock()
		session, err := m.store.Load(ctx, phone)
		if err == nil && session.Expired(m.now()) {
			if err := m.store.Delete(ctx, phone); err != nil {
				slog.Warn("Session sweep delete failed", "error", err, "phone", phone)
			} else {
				cleaned++
			}
		}
		lock.Unlock()
	}

	if cleaned > 0 {
		slog.Info("Session sweep removed expired sessions", "cleaned", cleaned)
	}
}
