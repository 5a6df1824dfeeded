// Package bot wires the messaging transport, session manager, rate limiters,
// conversation engine, and conversation log into the running support bot.
//
// The Dispatcher consumes inbound messages from the transport's Responses
// channel and guarantees a reply for every message it accepts: engine panics
// and failures degrade to a static apology rather than silence.
package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/beforest-co/supportbot/internal/convlog"
	"github.com/beforest-co/supportbot/internal/flow"
	"github.com/beforest-co/supportbot/internal/messaging"
	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/ratelimit"
)

// panicReply is sent when processing a message panics or fails outright.
const panicReply = `Sorry, something went wrong. Type "menu" to continue.`

// SessionManager is the slice of the session manager the dispatcher needs.
type SessionManager interface {
	GetOrCreate(ctx context.Context, phone string) (*models.Session, error)
	SetUserName(ctx context.Context, phone, name string) error
	SetContext(ctx context.Context, phone string, patch models.ContextPatch) (*models.Session, error)
	AppendHistory(ctx context.Context, phone, content string, role models.MessageRole) (*models.HistoryEntry, error)
}

// ReplyEngine produces the bot's reply for one inbound message.
type ReplyEngine interface {
	Reply(ctx context.Context, session *models.Session, message string) (string, error)
}

// Dispatcher pumps inbound messages through the conversation engine.
type Dispatcher struct {
	service  messaging.Service
	sessions SessionManager
	engine   ReplyEngine
	limits   *ratelimit.Manager
	log      convlog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. The conversation logger may be a
// convlog.NopLogger when analytics storage is not configured.
func NewDispatcher(service messaging.Service, sessions SessionManager, engine ReplyEngine, limits *ratelimit.Manager, log convlog.Logger) *Dispatcher {
	if log == nil {
		log = convlog.NopLogger{}
	}
	return &Dispatcher{
		service:  service,
		sessions: sessions,
		engine:   engine,
		limits:   limits,
		log:      log,
	}
}

// Start launches the consumer goroutines. They exit when the context is
// cancelled or the transport closes its channels.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(2)
	go d.consumeResponses(ctx)
	go d.consumeReceipts(ctx)
	slog.Info("Dispatcher started")
}

// Wait blocks until the consumer goroutines have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	slog.Info("Dispatcher stopped")
}

func (d *Dispatcher) consumeResponses(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case response, ok := <-d.service.Responses():
			if !ok {
				return
			}
			// Per-phone serialization lives in the session manager, so
			// messages from different users can be processed concurrently.
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.HandleResponse(ctx, response)
			}()
		}
	}
}

// consumeReceipts drains delivery receipts so the transport's channel never
// blocks. Receipts are informational only.
func (d *Dispatcher) consumeReceipts(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-d.service.Receipts():
			if !ok {
				return
			}
			slog.Debug("Dispatcher receipt", "to", receipt.To, "status", receipt.Status)
		}
	}
}

// HandleResponse processes one inbound message end to end.
func (d *Dispatcher) HandleResponse(ctx context.Context, response models.Response) {
	phone, err := d.service.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Warn("Dispatcher dropping message with invalid sender", "error", err, "from", response.From)
		return
	}

	body := strings.TrimSpace(response.Body)
	if body == "" {
		slog.Debug("Dispatcher dropping empty message", "phone", phone)
		return
	}
	if len(body) > models.MaxInboundMessageLength {
		slog.Warn("Dispatcher dropping overly long message", "phone", phone, "length", len(body))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher recovered from panic", "panic", r, "phone", phone)
			d.send(ctx, phone, panicReply)
		}
	}()

	if res, notice := d.limits.CheckMessage(phone); !res.Allowed {
		d.send(ctx, phone, notice)
		return
	}

	start := time.Now()
	slog.Info("Dispatcher processing message", "phone", phone, "body_length", len(body))

	if err := d.service.SendTypingIndicator(ctx, phone, true); err != nil {
		slog.Debug("Dispatcher typing indicator failed", "error", err, "phone", phone)
	}
	defer func() {
		if err := d.service.SendTypingIndicator(ctx, phone, false); err != nil {
			slog.Debug("Dispatcher typing indicator failed", "error", err, "phone", phone)
		}
	}()

	session, err := d.sessions.GetOrCreate(ctx, phone)
	if err != nil {
		slog.Error("Dispatcher failed to load session", "error", err, "phone", phone)
		d.send(ctx, phone, panicReply)
		return
	}

	if response.UserName != "" && session.UserName != response.UserName {
		if err := d.sessions.SetUserName(ctx, phone, response.UserName); err != nil {
			slog.Warn("Dispatcher failed to store user name", "error", err, "phone", phone)
		} else {
			session.UserName = response.UserName
		}
	}

	d.ensureConversation(ctx, session, body)
	d.logMessage(ctx, session, body, models.RoleUser, convlog.Metadata{})

	if _, err := d.sessions.AppendHistory(ctx, phone, body, models.RoleUser); err != nil {
		slog.Warn("Dispatcher failed to append history", "error", err, "phone", phone)
	}

	// Only messages headed for the AI fallback consume AI budget.
	if _, static := flow.StaticRoute(body, session.Context); !static {
		if res, notice := d.limits.CheckAI(phone); !res.Allowed {
			d.send(ctx, phone, notice)
			return
		}
	}

	reply, err := d.engine.Reply(ctx, session, body)
	if err != nil {
		slog.Error("Dispatcher engine error", "error", err, "phone", phone)
		reply = panicReply
	}

	elapsed := time.Since(start)
	d.send(ctx, phone, reply)

	if _, err := d.sessions.AppendHistory(ctx, phone, reply, models.RoleAssistant); err != nil {
		slog.Warn("Dispatcher failed to append history", "error", err, "phone", phone)
	}
	d.logMessage(ctx, session, reply, models.RoleAssistant, convlog.Metadata{ProcessingTime: elapsed})

	slog.Info("Dispatcher message handled", "phone", phone, "elapsed", elapsed.Round(time.Millisecond))
}

// ensureConversation opens a conversation log record on the session's first
// message and stores its id in the session context for correlation.
func (d *Dispatcher) ensureConversation(ctx context.Context, session *models.Session, initialMessage string) {
	if session.Context.ConversationRef != "" {
		return
	}

	id, err := d.log.CreateConversation(ctx, session.Phone, initialMessage)
	if err != nil {
		slog.Warn("Dispatcher failed to create conversation record", "error", err, "phone", session.Phone)
		return
	}
	if id == "" {
		return
	}

	patch := models.ContextPatch{ConversationRef: &id}
	if updated, err := d.sessions.SetContext(ctx, session.Phone, patch); err != nil {
		slog.Warn("Dispatcher failed to store conversation ref", "error", err, "phone", session.Phone)
		session.Context.ConversationRef = id
	} else {
		session.Context = updated.Context
	}
}

// logMessage records one message to the conversation log, best-effort.
func (d *Dispatcher) logMessage(ctx context.Context, session *models.Session, text string, role models.MessageRole, meta convlog.Metadata) {
	ref := session.Context.ConversationRef
	if ref == "" {
		return
	}
	if err := d.log.LogMessage(ctx, ref, session.Phone, text, role, meta); err != nil {
		slog.Warn("Dispatcher failed to log message", "error", err, "phone", session.Phone)
		return
	}
	if err := d.log.UpdateActivity(ctx, ref); err != nil {
		slog.Debug("Dispatcher failed to update conversation activity", "error", err, "phone", session.Phone)
	}
}

// send delivers a reply, logging failures. There is no retry; WhatsApp
// clients resynchronize on the next message.
func (d *Dispatcher) send(ctx context.Context, phone, body string) {
	if body == "" {
		return
	}
	if err := d.service.SendMessage(ctx, phone, body); err != nil {
		slog.Error("Dispatcher failed to send reply", "error", err, "phone", phone)
	}
}
