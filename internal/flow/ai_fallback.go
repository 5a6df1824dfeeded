package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/templates"
)

// aiFallback handles a message no static rule matched. It first asks the
// model to classify the message against the menu options; a confident match
// starts the confirmation flow, anything else gets a knowledge-base answer.
// Every failure path ends in the static error fallback, never an error.
func (e *Engine) aiFallback(ctx context.Context, session *models.Session, message string) string {
	if e.ai == nil {
		return e.templates.Get(ctx, templates.KeyErrorFallback)
	}

	if intent, err := e.ai.RecognizeIntent(ctx, message); err == nil && isDigitOption(intent, 5) {
		slog.Info("AI recognized menu intent", "phone", session.Phone, "intent", intent)
		return e.beginIntentConfirmation(ctx, session, message, intent)
	}

	reply, err := e.ai.GenerateContextualResponse(ctx, message, session.History)
	if err != nil {
		slog.Warn("AI fallback failed, sending static fallback", "error", err, "phone", session.Phone)
		return e.templates.Get(ctx, templates.KeyErrorFallback)
	}

	return FormatResponseWithMenu(reply)
}

// beginIntentConfirmation sends a confirmation question for a recognized
// option and moves the session into the confirmation flow.
func (e *Engine) beginIntentConfirmation(ctx context.Context, session *models.Session, message, option string) string {
	firstLine, err := e.ai.GenerateIntentConfirmation(ctx, message, optionNames[option])
	if err != nil || strings.TrimSpace(firstLine) == "" {
		firstLine = fmt.Sprintf("I understand you're interested in *%s*.\n\nIs that correct?", optionNames[option])
	}

	patch := models.FlowPatch(models.FlowIntentConfirmation, 1)
	patch.RecognizedOption = &option
	patch.OriginalMessage = &message
	e.setContext(ctx, session, patch)

	return strings.Join([]string{
		strings.TrimSpace(firstLine),
		"",
		`✓ Reply "yes" to continue`,
		`✓ Reply "no" to see all options`,
		"✓ Or type a number (1-5) directly",
	}, "\n")
}

// FormatResponseWithMenu appends the standard five-option menu to a reply so
// every AI answer ends with a way forward.
func FormatResponseWithMenu(reply string) string {
	return strings.Join([]string{
		strings.TrimSpace(reply),
		"",
		"*What else can we help with?*",
		"",
		"1. Collective Visit",
		"2. Beforest Experiences",
		"3. Bewild Produce",
		"4. Beforest Hospitality",
		"5. Contact Us",
	}, "\n")
}
