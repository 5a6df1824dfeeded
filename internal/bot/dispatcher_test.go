package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beforest-co/supportbot/internal/convlog"
	"github.com/beforest-co/supportbot/internal/flow"
	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/ratelimit"
	"github.com/beforest-co/supportbot/internal/session"
	"github.com/beforest-co/supportbot/internal/store"
	"github.com/beforest-co/supportbot/internal/templates"
)

var digitsOnly = regexp.MustCompile(`[^0-9]`)

// mockService implements messaging.Service and records outbound traffic.
type mockService struct {
	mu        sync.Mutex
	sent      []sentMessage
	typing    []typingEvent
	sendErr   error
	receipts  chan models.Receipt
	responses chan models.Response
}

type sentMessage struct {
	To   string
	Body string
}

type typingEvent struct {
	To     string
	Typing bool
}

func newMockService() *mockService {
	return &mockService{
		receipts:  make(chan models.Receipt, 10),
		responses: make(chan models.Response, 10),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := digitsOnly.ReplaceAllString(recipient, "")
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	return canonical, nil
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return nil
}

func (m *mockService) SendTypingIndicator(ctx context.Context, to string, typing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, typingEvent{To: to, Typing: typing})
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockService) typingEvents() []typingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]typingEvent, len(m.typing))
	copy(out, m.typing)
	return out
}

// fallbackTemplates serves the built-in copy, like a bot with no template DB.
type fallbackTemplates struct{}

func (fallbackTemplates) Get(ctx context.Context, key string) string {
	return templates.FallbackMessage(key)
}

func (fallbackTemplates) Render(ctx context.Context, key string, variables map[string]string) string {
	return templates.RenderContent(templates.FallbackMessage(key), variables)
}

// panicEngine panics on every message.
type panicEngine struct{}

func (panicEngine) Reply(ctx context.Context, session *models.Session, message string) (string, error) {
	panic("engine exploded")
}

// recordingLogger captures convlog calls.
type recordingLogger struct {
	mu            sync.Mutex
	conversations []string
	messages      []loggedMessage
	createErr     error
}

type loggedMessage struct {
	ConversationID string
	Role           models.MessageRole
	Text           string
}

func (l *recordingLogger) CreateConversation(ctx context.Context, phone, initialMessage string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return "", l.createErr
	}
	id := fmt.Sprintf("conv_%d", len(l.conversations)+1)
	l.conversations = append(l.conversations, id)
	return id, nil
}

func (l *recordingLogger) LogMessage(ctx context.Context, conversationID, phone, text string, role models.MessageRole, meta convlog.Metadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, loggedMessage{ConversationID: conversationID, Role: role, Text: text})
	return nil
}

func (l *recordingLogger) UpdateActivity(ctx context.Context, conversationID string) error {
	return nil
}

func (l *recordingLogger) Close() error { return nil }

const testPhone = "911234567890"

func newTestDispatcher(svc *mockService, log convlog.Logger) (*Dispatcher, *session.Manager) {
	mgr := session.NewManager(store.NewInMemorySessionStore())
	engine := flow.NewEngine(mgr, fallbackTemplates{}, nil)
	return NewDispatcher(svc, mgr, engine, ratelimit.NewManager(), log), mgr
}

func TestHandleResponseGreeting(t *testing.T) {
	svc := newMockService()
	d, mgr := newTestDispatcher(svc, nil)

	d.HandleResponse(context.Background(), models.Response{From: "+911234567890", Body: "hello", UserName: "Asha"})

	sent := svc.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(sent))
	}
	if sent[0].To != testPhone {
		t.Errorf("reply sent to %q, want %q", sent[0].To, testPhone)
	}
	if !strings.Contains(sent[0].Body, "Welcome to Beforest") {
		t.Errorf("reply = %q, want welcome message", sent[0].Body)
	}

	s, err := mgr.GetOrCreate(context.Background(), testPhone)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if s.UserName != "Asha" {
		t.Errorf("UserName = %q, want Asha", s.UserName)
	}
	if len(s.History) != 2 {
		t.Fatalf("history length = %d, want 2 (user + assistant)", len(s.History))
	}
	if s.History[0].Role != models.RoleUser || s.History[0].Content != "hello" {
		t.Errorf("history[0] = %+v", s.History[0])
	}
	if s.History[1].Role != models.RoleAssistant {
		t.Errorf("history[1] role = %v, want assistant", s.History[1].Role)
	}
}

func TestHandleResponseTypingIndicator(t *testing.T) {
	svc := newMockService()
	d, _ := newTestDispatcher(svc, nil)

	d.HandleResponse(context.Background(), models.Response{From: testPhone, Body: "menu"})

	typing := svc.typingEvents()
	if len(typing) != 2 {
		t.Fatalf("expected typing on/off, got %d events", len(typing))
	}
	if !typing[0].Typing || typing[1].Typing {
		t.Errorf("typing events = %+v, want on then off", typing)
	}
}

func TestHandleResponseDropsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		response models.Response
	}{
		{"invalid sender", models.Response{From: "abc", Body: "hello"}},
		{"empty body", models.Response{From: testPhone, Body: "   "}},
		{"overly long body", models.Response{From: testPhone, Body: strings.Repeat("x", models.MaxInboundMessageLength+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			d, _ := newTestDispatcher(svc, nil)

			d.HandleResponse(context.Background(), tt.response)

			if sent := svc.sentMessages(); len(sent) != 0 {
				t.Errorf("expected no reply, got %+v", sent)
			}
		})
	}
}

func TestHandleResponseEnginePanicSendsApology(t *testing.T) {
	svc := newMockService()
	mgr := session.NewManager(store.NewInMemorySessionStore())
	d := NewDispatcher(svc, mgr, panicEngine{}, ratelimit.NewManager(), nil)

	d.HandleResponse(context.Background(), models.Response{From: testPhone, Body: "hello"})

	sent := svc.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected apology reply, got %d messages", len(sent))
	}
	if sent[0].Body != panicReply {
		t.Errorf("reply = %q, want %q", sent[0].Body, panicReply)
	}
}

func TestHandleResponseMessageRateLimit(t *testing.T) {
	svc := newMockService()
	d, _ := newTestDispatcher(svc, nil)
	ctx := context.Background()

	for i := 0; i < ratelimit.DefaultMessageLimit+1; i++ {
		d.HandleResponse(ctx, models.Response{From: testPhone, Body: "menu"})
	}

	sent := svc.sentMessages()
	if len(sent) != ratelimit.DefaultMessageLimit+1 {
		t.Fatalf("expected %d replies, got %d", ratelimit.DefaultMessageLimit+1, len(sent))
	}
	last := sent[len(sent)-1].Body
	if !strings.Contains(last, "Too many messages") {
		t.Errorf("final reply = %q, want rate limit notice", last)
	}
}

func TestHandleResponseLogsConversation(t *testing.T) {
	svc := newMockService()
	log := &recordingLogger{}
	d, mgr := newTestDispatcher(svc, log)
	ctx := context.Background()

	d.HandleResponse(ctx, models.Response{From: testPhone, Body: "hello"})
	d.HandleResponse(ctx, models.Response{From: testPhone, Body: "menu"})

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.conversations) != 1 {
		t.Fatalf("expected 1 conversation record, got %d", len(log.conversations))
	}
	if len(log.messages) != 4 {
		t.Fatalf("expected 4 logged messages, got %d", len(log.messages))
	}
	for _, msg := range log.messages {
		if msg.ConversationID != log.conversations[0] {
			t.Errorf("message logged to %q, want %q", msg.ConversationID, log.conversations[0])
		}
	}

	s, err := mgr.GetOrCreate(ctx, testPhone)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if s.Context.ConversationRef != log.conversations[0] {
		t.Errorf("ConversationRef = %q, want %q", s.Context.ConversationRef, log.conversations[0])
	}
}

func TestHandleResponseLoggerFailureStillReplies(t *testing.T) {
	svc := newMockService()
	log := &recordingLogger{createErr: fmt.Errorf("analytics db down")}
	d, _ := newTestDispatcher(svc, log)

	d.HandleResponse(context.Background(), models.Response{From: testPhone, Body: "hello"})

	if sent := svc.sentMessages(); len(sent) != 1 {
		t.Fatalf("expected reply despite logger failure, got %d messages", len(sent))
	}
}

func TestDispatcherStartConsumesChannel(t *testing.T) {
	svc := newMockService()
	d, _ := newTestDispatcher(svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	svc.responses <- models.Response{From: testPhone, Body: "hello"}
	svc.receipts <- models.Receipt{To: testPhone, Status: models.StatusTypeSent, Time: time.Now().Unix()}

	deadline := time.After(2 * time.Second)
	for len(svc.sentMessages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reply")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	d.Wait()

	sent := svc.sentMessages()
	if len(sent) != 1 || !strings.Contains(sent[0].Body, "Welcome to Beforest") {
		t.Errorf("unexpected replies: %+v", sent)
	}
}

func TestDispatcherConcurrentUsers(t *testing.T) {
	svc := newMockService()
	d, _ := newTestDispatcher(svc, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := fmt.Sprintf("9198765432%02d", i)
			d.HandleResponse(ctx, models.Response{From: from, Body: "hello"})
		}(i)
	}
	wg.Wait()

	sent := svc.sentMessages()
	if len(sent) != 10 {
		t.Fatalf("expected 10 replies, got %d", len(sent))
	}
	seen := make(map[string]bool)
	for _, msg := range sent {
		seen[msg.To] = true
	}
	if len(seen) != 10 {
		t.Errorf("replies reached %d distinct users, want 10", len(seen))
	}
}
