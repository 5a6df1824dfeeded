package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beforest-co/supportbot/internal/models"
	"github.com/beforest-co/supportbot/internal/templates"
)

// Accommodation identifiers for the two bookable stays.
const (
	AccommodationBlyton   = "blyton"
	AccommodationGlamping = "glamping"
)

// optionNames maps main menu digits to their display names.
var optionNames = map[string]string{
	"1": "Collective Visit",
	"2": "Beforest Experiences",
	"3": "Bewild Produce",
	"4": "Beforest Hospitality",
	"5": "Contact Beforest Team",
}

// SessionMutator is the slice of the session manager the engine needs.
type SessionMutator interface {
	SetContext(ctx context.Context, phone string, patch models.ContextPatch) (*models.Session, error)
	MarkEscalated(ctx context.Context, phone, reason string) error
}

// TemplateProvider serves operator-editable message copy.
type TemplateProvider interface {
	Get(ctx context.Context, key string) string
	Render(ctx context.Context, key string, variables map[string]string) string
}

// AIClient generates replies for messages the static router cannot place.
type AIClient interface {
	GenerateContextualResponse(ctx context.Context, userMessage string, history []models.HistoryEntry) (string, error)
	RecognizeIntent(ctx context.Context, userMessage string) (string, error)
	GenerateIntentConfirmation(ctx context.Context, userMessage, optionName string) (string, error)
}

// Engine routes inbound messages and produces replies. It never returns an
// error for AI or template failures; those degrade to static fallback copy so
// the user always gets an answer.
type Engine struct {
	sessions  SessionMutator
	templates TemplateProvider
	ai        AIClient
}

// NewEngine creates a conversation engine. The AI client may be nil, in which
// case unrouted messages get the static error fallback.
func NewEngine(sessions SessionMutator, tmpl TemplateProvider, ai AIClient) *Engine {
	slog.Debug("Creating flow Engine", "ai_enabled", ai != nil)
	return &Engine{sessions: sessions, templates: tmpl, ai: ai}
}

// Reply produces the bot's reply to one inbound message. The session is the
// caller's freshly loaded copy; context changes are persisted through the
// session manager before returning.
func (e *Engine) Reply(ctx context.Context, session *models.Session, message string) (string, error) {
	route, ok := StaticRoute(message, session.Context)
	if !ok {
		slog.Debug("No static route matched, using AI fallback", "phone", session.Phone)
		return e.aiFallback(ctx, session, message), nil
	}

	slog.Debug("Static route matched", "phone", session.Phone, "kind", route.Kind, "reason", route.Reason)
	return e.dispatch(ctx, session, route)
}

func (e *Engine) dispatch(ctx context.Context, session *models.Session, route Route) (string, error) {
	switch route.Kind {
	case RouteWelcome:
		return e.handleWelcome(ctx, session), nil
	case RouteMainMenu:
		return e.handleMenu(ctx, session), nil
	case RouteCollectiveInfo:
		return e.handleCollectiveInfoSubmission(ctx, session, route.Param), nil
	case RouteConfirmation:
		return e.handleConfirmationResponse(ctx, session, route.Param)
	case RouteNumberedOption:
		return e.handleNumberedOption(ctx, session, route.Param)
	case RouteHospitalityOption:
		return e.handleHospitalityOption(ctx, session, route.Param), nil
	case RouteAccommodation:
		return e.handleAccommodation(ctx, session, route.Param), nil
	case RouteCollectiveVisit:
		return e.handleCollectiveVisit(ctx, session), nil
	case RouteExperiences:
		return e.handleExperiences(ctx, session), nil
	case RouteBewildProduce:
		return e.handleBewildProduce(ctx, session), nil
	case RouteHospitality:
		return e.handleHospitality(ctx, session), nil
	case RouteGeneralQuery:
		return e.handleContactTeam(ctx, session), nil
	case RouteAcknowledgment:
		return `Happy to help! Type "menu" for more options.`, nil
	case RouteEscalation:
		return e.handleEscalation(ctx, session, route.Param), nil
	default:
		return "", fmt.Errorf("unknown route kind %q", route.Kind)
	}
}

// setContext persists a context change, logging instead of failing: losing a
// flow transition is recoverable, dropping the reply is not.
func (e *Engine) setContext(ctx context.Context, session *models.Session, patch models.ContextPatch) {
	updated, err := e.sessions.SetContext(ctx, session.Phone, patch)
	if err != nil {
		slog.Warn("Failed to persist session context", "error", err, "phone", session.Phone)
		patch.Apply(&session.Context)
		return
	}
	session.Context = updated.Context
}

func (e *Engine) handleWelcome(ctx context.Context, session *models.Session) string {
	name := session.UserName
	if name == "" {
		name = "there"
	}
	reply := e.templates.Render(ctx, templates.KeyWelcomeMessage, map[string]string{"name": name})
	e.setContext(ctx, session, models.FlowPatch(models.FlowWelcome, 1))
	return reply
}

func (e *Engine) handleMenu(ctx context.Context, session *models.Session) string {
	reply := e.templates.Get(ctx, templates.KeyMainMenu)
	e.setContext(ctx, session, models.FlowPatch(models.FlowMainMenu, 1))
	return reply
}

func (e *Engine) handleNumberedOption(ctx context.Context, session *models.Session, option string) (string, error) {
	// A level-2 hospitality session interprets digits as sub-menu choices.
	if session.Context.MenuLevel == 2 && session.Context.ParentOption == "4" {
		return e.handleHospitalityOption(ctx, session, option), nil
	}

	switch option {
	case "1":
		return e.handleCollectiveVisit(ctx, session), nil
	case "2":
		return e.handleExperiences(ctx, session), nil
	case "3":
		return e.handleBewildProduce(ctx, session), nil
	case "4":
		return e.handleHospitality(ctx, session), nil
	case "5":
		return e.handleContactTeam(ctx, session), nil
	default:
		return "Please select a valid option (1-5)", nil
	}
}

func (e *Engine) handleCollectiveVisit(ctx context.Context, session *models.Session) string {
	reply := e.templates.Get(ctx, templates.KeyCollectiveVisitInfo)
	e.setContext(ctx, session, models.FlowPatch(models.FlowCollectiveInfoGathering, 0))
	return reply
}

func (e *Engine) handleCollectiveInfoSubmission(ctx context.Context, session *models.Session, submission string) string {
	if !ValidCollectiveInfo(submission) {
		// Stay in the gathering flow and re-prompt.
		return strings.Join([]string{
			"That doesn't look complete. Please share these details in one message:",
			"",
			"• Your name",
			"• Email or phone number",
			"• Purpose of visit",
			"• Number of people",
			"• Preferred date/time",
		}, "\n")
	}

	slog.Info("Collective visit details submitted", "phone", session.Phone, "length", len(submission))
	e.setContext(ctx, session, models.FlowPatch(models.FlowMainMenu, 1))

	return strings.Join([]string{
		"Thank you! We've received your details.",
		"",
		"Our team will review your request and get back to you within 24 hours.",
		"",
		"Need immediate assistance?",
		"📧 crm@beforest.co",
		"📞 +91 7680070541 (Mon-Fri, 10am-6pm)",
	}, "\n")
}

func (e *Engine) handleExperiences(ctx context.Context, session *models.Session) string {
	reply := e.templates.Get(ctx, templates.KeyExperiences)
	e.setContext(ctx, session, models.FlowPatch(models.FlowExperiences, 0))
	return reply
}

func (e *Engine) handleBewildProduce(ctx context.Context, session *models.Session) string {
	reply := e.templates.Get(ctx, templates.KeyBewildProduce)
	e.setContext(ctx, session, models.FlowPatch(models.FlowBewildProduce, 0))
	return reply
}

func (e *Engine) handleHospitality(ctx context.Context, session *models.Session) string {
	reply := e.templates.Get(ctx, templates.KeyHospitalityOptions)
	patch := models.FlowPatch(models.FlowHospitality, 2)
	parent := "4"
	patch.ParentOption = &parent
	e.setContext(ctx, session, patch)
	return reply
}

func (e *Engine) handleContactTeam(ctx context.Context, session *models.Session) string {
	reply := e.templates.Get(ctx, templates.KeyContactTeam)
	e.setContext(ctx, session, models.FlowPatch(models.FlowContactTeam, 0))
	return reply
}

func (e *Engine) handleHospitalityOption(ctx context.Context, session *models.Session, option string) string {
	switch option {
	case "1":
		return e.handleAccommodation(ctx, session, AccommodationBlyton)
	case "2":
		return e.handleAccommodation(ctx, session, AccommodationGlamping)
	default:
		return "Please select 1 for Blyton Bungalow or 2 for Glamping."
	}
}

func (e *Engine) handleAccommodation(ctx context.Context, session *models.Session, accommodation string) string {
	var reply string
	switch accommodation {
	case AccommodationGlamping:
		reply = strings.Join([]string{
			"*Glamping, Hyderabad Collective*",
			"",
			"Luxury tents amidst striking rockscapes.",
			"",
			"Learn more and book:",
			"https://docs.google.com/forms/d/e/1FAIpQLSfnJDGgi6eSbx-pVdPrZQvgkqlxFuPja4UGaYLLyRBmYzx_zg/viewform",
			"",
			"For pricing & availability:",
			"📧 crm@beforest.co",
			"📞 +91 7680070541",
		}, "\n")
	default:
		reply = strings.Join([]string{
			"*Blyton Bungalow, Poomaale Collective, Coorg*",
			"",
			"Eco-friendly luxury meets coffee plantations.",
			"",
			"Learn more and book:",
			"https://hospitality.beforest.co/",
			"",
			"For pricing & availability:",
			"📧 crm@beforest.co",
			"📞 +91 7680070541",
		}, "\n")
	}

	e.setContext(ctx, session, models.FlowPatch(models.FlowHospitalityDirect, 0))
	return reply
}

func (e *Engine) handleConfirmationResponse(ctx context.Context, session *models.Session, message string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(message))

	switch normalized {
	case "yes", "y", "correct", "right", "ok", "okay":
		slog.Debug("Intent confirmed", "phone", session.Phone, "option", session.Context.RecognizedOption)
		return e.handleNumberedOption(ctx, session, session.Context.RecognizedOption)
	case "no", "n", "wrong", "incorrect", "nope":
		return e.handleMenu(ctx, session), nil
	}

	if isDigitOption(normalized, 5) {
		return e.handleNumberedOption(ctx, session, normalized)
	}

	return strings.Join([]string{
		"Please confirm:",
		"",
		`✓ Type "yes" to proceed`,
		`✓ Type "no" for main menu`,
		"✓ Or type a number (1-5)",
	}, "\n"), nil
}

func (e *Engine) handleEscalation(ctx context.Context, session *models.Session, reason string) string {
	if err := e.sessions.MarkEscalated(ctx, session.Phone, reason); err != nil {
		slog.Warn("Failed to mark session escalated", "error", err, "phone", session.Phone)
	}

	name := session.UserName
	if name == "" {
		name = "there"
	}
	return strings.Join([]string{
		fmt.Sprintf("Thank you %s!", name),
		"",
		"*Connecting you to a human agent...*",
		"",
		"*Your conversation history has been shared*",
		"*An agent will join this chat shortly*",
		"",
		"*Stay in this chat - help is on the way!*",
	}, "\n")
}
