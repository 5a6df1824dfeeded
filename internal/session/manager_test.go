package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/store"
)

func newTestManager() (*Manager, *store.InMemorySessionStore) {
	st := store.NewInMemorySessionStore()
	return NewManager(st), st
}

func TestGetOrCreateNewSession(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	session, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if session.ID == "" {
		t.Error("GetOrCreate() session has empty ID")
	}
	if session.Phone != "+911234567890" {
		t.Errorf("GetOrCreate() phone = %v, want +911234567890", session.Phone)
	}
	if session.Status != models.SessionStatusActive {
		t.Errorf("GetOrCreate() status = %v, want active", session.Status)
	}
	if session.Context.CurrentFlow != models.FlowWelcome {
		t.Errorf("GetOrCreate() flow = %v, want welcome", session.Context.CurrentFlow)
	}
	if session.Context.MenuLevel != 1 {
		t.Errorf("GetOrCreate() menu level = %v, want 1", session.Context.MenuLevel)
	}
	if !session.Flags.IsFirstTime {
		t.Error("GetOrCreate() IsFirstTime = false, want true for a new session")
	}
	if len(session.History) != 0 {
		t.Errorf("GetOrCreate() history length = %v, want 0", len(session.History))
	}
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	first, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("GetOrCreate() second ID = %v, want %v", second.ID, first.ID)
	}
}

func TestGetOrCreateTouchBumpsLastActivity(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	base := time.Now()
	mgr.now = func() time.Time { return base }
	first, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	mgr.now = func() time.Time { return base.Add(10 * time.Minute) }
	second, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() second call error = %v", err)
	}

	if !second.LastActivity.After(first.LastActivity) {
		t.Errorf("GetOrCreate() LastActivity = %v, want after %v", second.LastActivity, first.LastActivity)
	}
	if second.ID != first.ID {
		t.Error("GetOrCreate() touch within the idle window must keep the session")
	}
}

func TestGetOrCreateExpiredSessionReplaced(t *testing.T) {
	mgr, st := newTestManager()
	ctx := context.Background()

	base := time.Now()
	mgr.now = func() time.Time { return base }

	original, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := mgr.SetUserName(ctx, "+911234567890", "Asha"); err != nil {
		t.Fatalf("SetUserName() error = %v", err)
	}
	if _, err := mgr.SetContext(ctx, "+911234567890", models.FlowPatch(models.FlowHospitality, 2)); err != nil {
		t.Fatalf("SetContext() error = %v", err)
	}
	if _, err := mgr.AppendHistory(ctx, "+911234567890", "hello", models.RoleUser); err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	// Jump past the idle timeout.
	mgr.now = func() time.Time { return base.Add(models.SessionIdleTimeout + time.Minute) }

	replacement, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() after expiry error = %v", err)
	}

	if replacement.ID == original.ID {
		t.Error("GetOrCreate() after expiry kept the old session ID")
	}
	if replacement.UserName != "Asha" {
		t.Errorf("GetOrCreate() after expiry UserName = %v, want Asha carried over", replacement.UserName)
	}
	if replacement.Flags.IsFirstTime {
		t.Error("GetOrCreate() after expiry IsFirstTime = true, want false for a returning user")
	}
	if replacement.Context.CurrentFlow != models.FlowWelcome {
		t.Errorf("GetOrCreate() after expiry flow = %v, want welcome", replacement.Context.CurrentFlow)
	}
	if len(replacement.History) != 0 {
		t.Errorf("GetOrCreate() after expiry history length = %v, want 0", len(replacement.History))
	}

	stored, err := st.Load(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("Load() after replacement error = %v", err)
	}
	if stored.ID != replacement.ID {
		t.Errorf("stored session ID = %v, want replacement %v", stored.ID, replacement.ID)
	}
}

func TestSetContextMergesPatch(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	if _, err := mgr.GetOrCreate(ctx, "+911234567890"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	parent := "4"
	patch := models.FlowPatch(models.FlowHospitality, 2)
	patch.ParentOption = &parent

	session, err := mgr.SetContext(ctx, "+911234567890", patch)
	if err != nil {
		t.Fatalf("SetContext() error = %v", err)
	}

	if session.Context.CurrentFlow != models.FlowHospitality {
		t.Errorf("SetContext() flow = %v, want hospitality", session.Context.CurrentFlow)
	}
	if session.Context.MenuLevel != 2 {
		t.Errorf("SetContext() menu level = %v, want 2", session.Context.MenuLevel)
	}
	if session.Context.ParentOption != "4" {
		t.Errorf("SetContext() parent option = %v, want 4", session.Context.ParentOption)
	}

	// A second patch leaving ParentOption nil must not clear it.
	session, err = mgr.SetContext(ctx, "+911234567890", models.FlowPatch(models.FlowHospitalityDirect, 0))
	if err != nil {
		t.Fatalf("SetContext() second patch error = %v", err)
	}
	if session.Context.ParentOption != "4" {
		t.Errorf("SetContext() parent option after partial patch = %v, want 4", session.Context.ParentOption)
	}
}

func TestAppendHistoryBounded(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	for i := 0; i < models.MaxHistoryEntries+5; i++ {
		if _, err := mgr.AppendHistory(ctx, "+911234567890", fmt.Sprintf("message %d", i), models.RoleUser); err != nil {
			t.Fatalf("AppendHistory() error = %v", err)
		}
	}

	session, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if len(session.History) != models.MaxHistoryEntries {
		t.Fatalf("history length = %v, want %v", len(session.History), models.MaxHistoryEntries)
	}
	// Oldest entries evicted first: entry 0..4 gone, 5 is now first.
	if session.History[0].Content != "message 5" {
		t.Errorf("history[0] = %v, want message 5", session.History[0].Content)
	}
	if session.History[len(session.History)-1].Content != fmt.Sprintf("message %d", models.MaxHistoryEntries+4) {
		t.Errorf("history tail = %v, want last appended message", session.History[len(session.History)-1].Content)
	}
}

func TestAppendHistoryEntryFields(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	entry, err := mgr.AppendHistory(ctx, "+911234567890", "hello there", models.RoleAssistant)
	if err != nil {
		t.Fatalf("AppendHistory() error = %v", err)
	}

	if entry.ID == "" {
		t.Error("AppendHistory() entry has empty ID")
	}
	if entry.Role != models.RoleAssistant {
		t.Errorf("AppendHistory() role = %v, want assistant", entry.Role)
	}
	if entry.Content != "hello there" {
		t.Errorf("AppendHistory() content = %v, want hello there", entry.Content)
	}
	if entry.Timestamp.IsZero() {
		t.Error("AppendHistory() entry timestamp is zero")
	}
}

func TestMarkEscalated(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	if err := mgr.MarkEscalated(ctx, "+911234567890", "user requested human"); err != nil {
		t.Fatalf("MarkEscalated() error = %v", err)
	}

	session, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if session.Status != models.SessionStatusEscalated {
		t.Errorf("status = %v, want escalated", session.Status)
	}
	if !session.Flags.EscalationRequested {
		t.Error("EscalationRequested = false, want true")
	}
	if session.Flags.EscalationReason != "user requested human" {
		t.Errorf("EscalationReason = %v, want user requested human", session.Flags.EscalationReason)
	}
}

func TestEndSessionDeletes(t *testing.T) {
	mgr, st := newTestManager()
	ctx := context.Background()

	if _, err := mgr.GetOrCreate(ctx, "+911234567890"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if err := mgr.EndSession(ctx, "+911234567890"); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	if _, err := st.Load(ctx, "+911234567890"); err != store.ErrNotFound {
		t.Errorf("Load() after EndSession error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentSetContextNoLostUpdates(t *testing.T) {
	mgr, _ := newTestManager()
	ctx := context.Background()

	if _, err := mgr.GetOrCreate(ctx, "+911234567890"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			if _, err := mgr.AppendHistory(ctx, "+911234567890", fmt.Sprintf("concurrent %d", i), models.RoleUser); err != nil {
				t.Errorf("AppendHistory() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	session, err := mgr.GetOrCreate(ctx, "+911234567890")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if len(session.History) != writers {
		t.Errorf("history length after %d concurrent appends = %v, want %v", writers, len(session.History), writers)
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	mgr, st := newTestManager()
	ctx := context.Background()

	base := time.Now()
	mgr.now = func() time.Time { return base }
	if _, err := mgr.GetOrCreate(ctx, "+911111111111"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	mgr.now = func() time.Time { return base.Add(20 * time.Minute) }
	if _, err := mgr.GetOrCreate(ctx, "+922222222222"); err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	// First session is now past the timeout, second is not.
	mgr.now = func() time.Time { return base.Add(models.SessionIdleTimeout + 5*time.Minute) }
	mgr.sweepOnce(ctx)

	if _, err := st.Load(ctx, "+911111111111"); err != store.ErrNotFound {
		t.Errorf("Load() expired session error = %v, want ErrNotFound", err)
	}
	if _, err := st.Load(ctx, "+922222222222"); err != nil {
		t.Errorf("Load() live session error = %v, want nil", err)
	}
}

func TestIsExpired(t *testing.T) {
	mgr, _ := newTestManager()
	base := time.Now()
	mgr.now = func() time.Time { return base }

	session := &models.Session{LastActivity: base.Add(-models.SessionIdleTimeout - time.Second)}
	if !mgr.IsExpired(session) {
		t.Error("IsExpired() = false for a session past the idle timeout")
	}

	session.LastActivity = base.Add(-models.SessionIdleTimeout + time.Second)
	if mgr.IsExpired(session) {
		t.Error("IsExpired() = true for a session within the idle timeout")
	}
}
