package ratelimit

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests drive the limiter's notion of time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(3, time.Minute, 5*time.Minute)
	l.now = clock.Now

	for i := 0; i < 3; i++ {
		if res := l.Allow("phone"); !res.Allowed {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}
	if res := l.Allow("phone"); res.Allowed {
		t.Fatal("request over limit allowed, want rejected")
	}
}

func TestLimiterBlockOutlastsWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(2, time.Minute, 5*time.Minute)
	l.now = clock.Now

	l.Allow("phone")
	l.Allow("phone")
	res := l.Allow("phone")
	if res.Allowed {
		t.Fatal("expected rejection")
	}
	if res.RetryAfter != 5*time.Minute {
		t.Errorf("RetryAfter = %v, want 5m", res.RetryAfter)
	}

	// The window rolls over but the block persists.
	clock.Advance(2 * time.Minute)
	if res := l.Allow("phone"); res.Allowed {
		t.Fatal("blocked key allowed after window rollover")
	}

	clock.Advance(4 * time.Minute)
	if res := l.Allow("phone"); !res.Allowed {
		t.Fatal("key still blocked after block duration elapsed")
	}
}

func TestLimiterWindowResets(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(2, time.Minute, 5*time.Minute)
	l.now = clock.Now

	l.Allow("phone")
	l.Allow("phone")

	clock.Advance(61 * time.Second)
	if res := l.Allow("phone"); !res.Allowed {
		t.Fatal("expected fresh window to allow")
	}
}

func TestLimiterKeysIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(1, time.Minute, 5*time.Minute)
	l.now = clock.Now

	l.Allow("a")
	if res := l.Allow("a"); res.Allowed {
		t.Fatal("key a over limit allowed")
	}
	if res := l.Allow("b"); !res.Allowed {
		t.Fatal("key b rejected, want allowed")
	}
}

func TestLimiterRemaining(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(3, time.Minute, 5*time.Minute)
	l.now = clock.Now

	if got := l.Remaining("phone"); got != 3 {
		t.Errorf("Remaining before use = %d, want 3", got)
	}
	l.Allow("phone")
	l.Allow("phone")
	if got := l.Remaining("phone"); got != 1 {
		t.Errorf("Remaining after two = %d, want 1", got)
	}

	l.Allow("phone")
	l.Allow("phone") // exceeds, blocks
	if got := l.Remaining("phone"); got != 0 {
		t.Errorf("Remaining while blocked = %d, want 0", got)
	}
}

func TestLimiterSweep(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(2, time.Minute, 5*time.Minute)
	l.now = clock.Now

	l.Allow("idle")
	l.Allow("blocked")
	l.Allow("blocked")
	l.Allow("blocked") // starts block

	clock.Advance(2 * time.Minute)
	if removed := l.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d buckets, want 1 (idle only)", removed)
	}
	if res := l.Allow("blocked"); res.Allowed {
		t.Fatal("blocked key survived sweep but got allowed")
	}
}

func TestLimiterConcurrentAccess(t *testing.T) {
	l := NewLimiter(1000, time.Minute, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Allow("phone")
			}
		}()
	}
	wg.Wait()

	if got := l.Remaining("phone"); got != 800 {
		t.Errorf("Remaining after 200 concurrent hits = %d, want 800", got)
	}
}

func TestManagerCheckMessage(t *testing.T) {
	m := NewManager()

	for i := 0; i < DefaultMessageLimit; i++ {
		res, msg := m.CheckMessage("911234567890")
		if !res.Allowed {
			t.Fatalf("message %d rejected: %s", i+1, msg)
		}
	}

	res, msg := m.CheckMessage("911234567890")
	if res.Allowed {
		t.Fatal("message over limit allowed")
	}
	if !strings.Contains(msg, "Too many messages") {
		t.Errorf("rejection message = %q", msg)
	}

	// Another user is unaffected.
	if res, _ := m.CheckMessage("919999999999"); !res.Allowed {
		t.Fatal("unrelated user rejected")
	}
}

func TestManagerCheckAI(t *testing.T) {
	m := NewManager()

	for i := 0; i < DefaultAILimit; i++ {
		if res, _ := m.CheckAI("911234567890"); !res.Allowed {
			t.Fatalf("AI request %d rejected", i+1)
		}
	}

	res, msg := m.CheckAI("911234567890")
	if res.Allowed {
		t.Fatal("AI request over limit allowed")
	}
	if !strings.Contains(msg, "AI service temporarily limited") {
		t.Errorf("rejection message = %q", msg)
	}
}
