// Package models defines the core data structures for the Beforest support bot.
//
// It includes the per-user session record, inbound/outbound message events, and
// the flow constants shared across modules.
package models

import (
	"errors"
	"time"
)

// StatusType represents the delivery status of an outbound message.
type StatusType string

const (
	// StatusTypeSent indicates the message was handed to the transport.
	StatusTypeSent StatusType = "sent"
	// StatusTypeDelivered indicates the recipient's device acknowledged delivery.
	StatusTypeDelivered StatusType = "delivered"
	// StatusTypeRead indicates the recipient read the message.
	StatusTypeRead StatusType = "read"
)

// Validation constants for inbound message filtering.
const (
	// MaxInboundMessageLength is the longest inbound text the bot will process.
	// Longer messages are dropped as likely spam or pasted system output.
	MaxInboundMessageLength = 500
)

// Error variables for better error handling and testability.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
)

// Response represents an incoming message from a user. UserName carries the
// sender's display name when the transport provides one (WhatsApp push name,
// Twilio profile name) and may be empty.
type Response struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	UserName string `json:"user_name,omitempty"`
	Time     int64  `json:"time"`
}

// Receipt represents a delivery status event for an outbound message.
type Receipt struct {
	To     string     `json:"to"`
	Status StatusType `json:"status"`
	Time   int64      `json:"time"`
}

// MessageRole identifies who authored a conversation history entry.
type MessageRole string

const (
	// RoleUser marks an entry authored by the end user.
	RoleUser MessageRole = "user"
	// RoleAssistant marks an entry authored by the bot.
	RoleAssistant MessageRole = "assistant"
)

// HistoryEntry is one turn in a session's conversation history.
type HistoryEntry struct {
	ID        string      `json:"id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}
