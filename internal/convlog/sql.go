package convlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/store"
	"github.com/beforest-co/supportbot/internal/util"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

//go:embed migrations_postgres.sql
var postgresMigrations string

// SQLLogger writes conversations and messages to Postgres or SQLite, selected
// by DSN shape.
type SQLLogger struct {
	db     *sql.DB
	driver string
}

// NewSQLLogger opens the conversation log database and applies migrations.
func NewSQLLogger(dsn string) (*SQLLogger, error) {
	if dsn == "" {
		slog.Error("SQLLogger DSN not set")
		return nil, fmt.Errorf("conversation log DSN not set")
	}

	driver := store.DetectDSNType(dsn)
	slog.Debug("Opening conversation log database", "driver", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		slog.Error("Failed to open conversation log database", "error", err, "driver", driver)
		return nil, fmt.Errorf("open conversation log database: %w", err)
	}
	if err := db.Ping(); err != nil {
		slog.Error("Conversation log ping failed", "error", err, "driver", driver)
		return nil, fmt.Errorf("conversation log ping: %w", err)
	}

	migrations := sqliteMigrations
	if driver == "postgres" {
		migrations = postgresMigrations
	}
	if _, err := db.Exec(migrations); err != nil {
		slog.Error("Failed to run conversation log migrations", "error", err, "driver", driver)
		return nil, fmt.Errorf("run conversation log migrations: %w", err)
	}

	slog.Info("Conversation log database opened", "driver", driver)
	return &SQLLogger{db: db, driver: driver}, nil
}

// placeholder returns the driver-appropriate bind placeholder for position n.
func (l *SQLLogger) placeholder(n int) string {
	if l.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// CreateConversation inserts a conversation record and returns its id.
func (l *SQLLogger) CreateConversation(ctx context.Context, phone, initialMessage string) (string, error) {
	id := util.GenerateConversationID()
	now := time.Now().UTC()

	query := fmt.Sprintf(
		`INSERT INTO bot_conversations (id, phone, title, conversation_type, status, started_at, last_activity)
		 VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		l.placeholder(1), l.placeholder(2), l.placeholder(3), l.placeholder(4), l.placeholder(5), l.placeholder(6), l.placeholder(7))

	_, err := l.db.ExecContext(ctx, query,
		id, phone, conversationTitle(initialMessage), conversationType(initialMessage), "active", now, now)
	if err != nil {
		slog.Error("SQLLogger CreateConversation failed", "error", err, "phone", phone)
		return "", fmt.Errorf("insert conversation for %s: %w", phone, err)
	}

	slog.Debug("SQLLogger CreateConversation succeeded", "conversation_id", id, "phone", phone)
	return id, nil
}

// LogMessage inserts one message row. Message bodies are stored verbatim;
// lengths only are logged.
func (l *SQLLogger) LogMessage(ctx context.Context, conversationID, phone, text string, role models.MessageRole, meta Metadata) error {
	id := util.GenerateMessageID()

	var processingMS sql.NullInt64
	if meta.ProcessingTime > 0 {
		processingMS = sql.NullInt64{Int64: meta.ProcessingTime.Milliseconds(), Valid: true}
	}
	var intent sql.NullString
	if meta.Intent != "" {
		intent = sql.NullString{String: meta.Intent, Valid: true}
	}

	query := fmt.Sprintf(
		`INSERT INTO bot_messages (id, conversation_id, phone, message_text, message_role, intent_recognized, processing_time_ms, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`,
		l.placeholder(1), l.placeholder(2), l.placeholder(3), l.placeholder(4), l.placeholder(5), l.placeholder(6), l.placeholder(7), l.placeholder(8))

	_, err := l.db.ExecContext(ctx, query,
		id, conversationID, phone, text, string(role), intent, processingMS, time.Now().UTC())
	if err != nil {
		slog.Error("SQLLogger LogMessage failed", "error", err, "conversation_id", conversationID, "role", role)
		return fmt.Errorf("insert message for conversation %s: %w", conversationID, err)
	}

	slog.Debug("SQLLogger LogMessage succeeded", "conversation_id", conversationID, "role", role, "length", len(text))
	return nil
}

// UpdateActivity bumps the conversation's last-activity timestamp.
func (l *SQLLogger) UpdateActivity(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`UPDATE bot_conversations SET last_activity = %s WHERE id = %s`,
		l.placeholder(1), l.placeholder(2))

	_, err := l.db.ExecContext(ctx, query, time.Now().UTC(), conversationID)
	if err != nil {
		slog.Error("SQLLogger UpdateActivity failed", "error", err, "conversation_id", conversationID)
		return fmt.Errorf("update activity for conversation %s: %w", conversationID, err)
	}
	return nil
}

// Close closes the database handle.
func (l *SQLLogger) Close() error {
	slog.Debug("Closing conversation log database", "driver", l.driver)
	return l.db.Close()
}
