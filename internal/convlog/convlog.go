// Package convlog records conversations to the analytics database.
//
// Logging is strictly best-effort: the dispatcher reports failures and moves
// on, and a missing DSN swaps in a no-op logger. Losing an analytics row must
// never delay or drop a user-facing reply.
package convlog

import (
	"context"
	"strings"
	"time"

	"github.com/beforest-co/supportbot/internal/models"
)

// Metadata carries optional per-message analytics attributes.
type Metadata struct {
	Intent         string
	ProcessingTime time.Duration
}

// Logger records conversations and their messages.
type Logger interface {
	// CreateConversation opens a conversation record for a phone and returns
	// its id for correlation from the session.
	CreateConversation(ctx context.Context, phone, initialMessage string) (string, error)
	// LogMessage appends one message to a conversation.
	LogMessage(ctx context.Context, conversationID, phone, text string, role models.MessageRole, meta Metadata) error
	// UpdateActivity bumps the conversation's last-activity timestamp.
	UpdateActivity(ctx context.Context, conversationID string) error
	// Close releases backend resources.
	Close() error
}

// conversationType buckets a conversation by its opening message for the
// analytics dashboard.
func conversationType(initialMessage string) string {
	msg := strings.ToLower(strings.TrimSpace(initialMessage))
	switch {
	case strings.Contains(msg, "collective visit"), strings.Contains(msg, "group"), strings.Contains(msg, "team"):
		return "booking"
	case strings.Contains(msg, "accommodation"), strings.Contains(msg, "stay"), strings.Contains(msg, "hospitality"):
		return "booking"
	case strings.Contains(msg, "experience"), strings.Contains(msg, "activity"), strings.Contains(msg, "tour"):
		return "inquiry"
	case strings.Contains(msg, "product"), strings.Contains(msg, "bewild"), strings.Contains(msg, "buy"):
		return "inquiry"
	case strings.Contains(msg, "query"), strings.Contains(msg, "question"), strings.Contains(msg, "help"):
		return "support"
	case strings.Contains(msg, "complaint"), strings.Contains(msg, "problem"), strings.Contains(msg, "issue"):
		return "support"
	default:
		return "chat"
	}
}

// conversationTitle derives a human-readable title from the opening message.
func conversationTitle(initialMessage string) string {
	if initialMessage == "" {
		return "WhatsApp Conversation"
	}

	msg := strings.ToLower(strings.TrimSpace(initialMessage))
	switch {
	case strings.Contains(msg, "collective visit"), strings.Contains(msg, "group visit"):
		return "Collective Visit Inquiry"
	case strings.Contains(msg, "accommodation"), strings.Contains(msg, "stay"), strings.Contains(msg, "hospitality"):
		return "Accommodation Inquiry"
	case strings.Contains(msg, "experience"), strings.Contains(msg, "activity"):
		return "Experience Inquiry"
	case strings.Contains(msg, "product"), strings.Contains(msg, "bewild"), strings.Contains(msg, "buy"):
		return "Product Inquiry"
	case strings.Contains(msg, "query"), strings.Contains(msg, "question"), strings.Contains(msg, "help"):
		return "General Query"
	}

	for _, greeting := range []string{"hello", "hi", "hey", "start"} {
		if strings.Contains(msg, greeting) {
			return "New Conversation"
		}
	}

	words := strings.Fields(initialMessage)
	if len(words) > 4 {
		words = words[:4]
	}
	title := "Chat: " + strings.Join(words, " ") + "..."
	if len(title) > 50 {
		title = title[:50]
	}
	return title
}
