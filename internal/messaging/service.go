// Package messaging abstracts the WhatsApp transports the support bot can run
// on. Both the Whatsmeow-based personal client and the Twilio Business API
// implementation satisfy the same Service interface, so the dispatcher never
// knows which one it is talking to.
package messaging

import (
	"context"
	"errors"
	"regexp"

	"github.com/beforest-co/supportbot/internal/models"
)

// ErrServiceStopped is returned by send operations after Stop has been called.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything that is not a digit when canonicalizing
// recipient phone numbers.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
// It supports sending messages and typing indicators, and provides channels
// for receipt and inbound message events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	// This allows each service to implement its own recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendTypingIndicator toggles the typing indicator for a recipient.
	// Transports that cannot express it return nil.
	SendTypingIndicator(ctx context.Context, to string, typing bool) error

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}

// canonicalizePhone reduces a recipient to its digits and validates the
// result. Shared by both transport implementations.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", errors.New("invalid phone number: no digits found in recipient")
	}
	if len(canonical) < 6 {
		return "", errors.New("invalid phone number: too short (minimum 6 digits required)")
	}
	return canonical, nil
}
