package convlog

import (
	"context"
	"log/slog"

	"github.com/beforest-co/supportbot/internal/models"
)

// NopLogger discards everything. Used when no conversation log DSN is
// configured so callers never need a nil check.
type NopLogger struct{}

// NewNopLogger creates a logger that records nothing.
func NewNopLogger() *NopLogger {
	slog.Info("Conversation logging disabled, no DSN configured")
	return &NopLogger{}
}

func (NopLogger) CreateConversation(ctx context.Context, phone, initialMessage string) (string, error) {
	return "", nil
}

func (NopLogger) LogMessage(ctx context.Context, conversationID, phone, text string, role models.MessageRole, meta Metadata) error {
	return nil
}

func (NopLogger) UpdateActivity(ctx context.Context, conversationID string) error {
	return nil
}

func (NopLogger) Close() error { return nil }
