package models

import "time"

// Flow names a conversational state. The current flow determines how the next
// inbound message is interpreted by the static router.
type Flow string

const (
	// FlowWelcome is the initial state after a greeting.
	FlowWelcome Flow = "welcome"
	// FlowMainMenu is the top-level numbered menu.
	FlowMainMenu Flow = "main_menu"
	// FlowCollectiveInfoGathering consumes arbitrary free text as lead details.
	FlowCollectiveInfoGathering Flow = "collective_info_gathering"
	// FlowIntentConfirmation awaits a yes/no/digit reply to a recognized intent.
	FlowIntentConfirmation Flow = "intent_confirmation"
	// FlowExperiences follows the Beforest Experiences info message.
	FlowExperiences Flow = "experiences"
	// FlowBewildProduce follows the Bewild Produce info message.
	FlowBewildProduce Flow = "bewild_produce"
	// FlowHospitality is the two-option hospitality sub-menu.
	FlowHospitality Flow = "hospitality"
	// FlowHospitalityDirect follows a specific-accommodation detail message.
	FlowHospitalityDirect Flow = "hospitality_direct"
	// FlowContactTeam follows the contact information message.
	FlowContactTeam Flow = "contact_team"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	// SessionStatusActive is the normal conversational state.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusEscalated marks a session flagged for human attention.
	SessionStatusEscalated SessionStatus = "escalated"
	// SessionStatusEnded marks a session explicitly closed.
	SessionStatusEnded SessionStatus = "ended"
)

// Session lifecycle constants.
const (
	// SessionIdleTimeout is how long a session may sit without activity before
	// it is treated as expired. Expiry is checked on every read; the periodic
	// sweep is advisory cleanup only.
	SessionIdleTimeout = 30 * time.Minute
	// SessionSweepInterval is how often expired sessions are swept.
	SessionSweepInterval = 5 * time.Minute
	// MaxHistoryEntries bounds the conversation history kept per session.
	// Oldest entries are evicted first.
	MaxHistoryEntries = 20
)

// SessionContext holds the mutable conversational position of a session.
// CurrentFlow and MenuLevel are only meaningful together; handlers set both
// atomically through a single ContextPatch.
type SessionContext struct {
	CurrentFlow  Flow `json:"current_flow"`
	PreviousFlow Flow `json:"previous_flow,omitempty"`
	// MenuLevel is the menu depth: 0 = none, 1 = top menu, 2 = sub-menu.
	MenuLevel int `json:"menu_level"`
	// ParentOption is the top-level option a level-2 sub-menu belongs to.
	ParentOption string `json:"parent_option,omitempty"`
	// RecognizedOption and OriginalMessage carry intent-confirmation state.
	RecognizedOption string `json:"recognized_option,omitempty"`
	OriginalMessage  string `json:"original_message,omitempty"`
	// ConversationRef is the id of the correlated record in the external
	// conversation log. Opaque to the bot.
	ConversationRef string `json:"conversation_ref,omitempty"`
}

// ContextPatch is a partial SessionContext for shallow merges. Nil fields are
// left untouched.
type ContextPatch struct {
	CurrentFlow      *Flow
	PreviousFlow     *Flow
	MenuLevel        *int
	ParentOption     *string
	RecognizedOption *string
	OriginalMessage  *string
	ConversationRef  *string
}

// Apply merges the patch into the context.
func (p ContextPatch) Apply(c *SessionContext) {
	if p.CurrentFlow != nil {
		c.CurrentFlow = *p.CurrentFlow
	}
	if p.PreviousFlow != nil {
		c.PreviousFlow = *p.PreviousFlow
	}
	if p.MenuLevel != nil {
		c.MenuLevel = *p.MenuLevel
	}
	if p.ParentOption != nil {
		c.ParentOption = *p.ParentOption
	}
	if p.RecognizedOption != nil {
		c.RecognizedOption = *p.RecognizedOption
	}
	if p.OriginalMessage != nil {
		c.OriginalMessage = *p.OriginalMessage
	}
	if p.ConversationRef != nil {
		c.ConversationRef = *p.ConversationRef
	}
}

// FlowPatch builds a patch that moves the session to a flow at a menu level,
// keeping the two fields consistent.
func FlowPatch(flow Flow, menuLevel int) ContextPatch {
	return ContextPatch{CurrentFlow: &flow, MenuLevel: &menuLevel}
}

// SessionFlags carries boolean markers about the session.
type SessionFlags struct {
	IsFirstTime         bool   `json:"is_first_time"`
	EscalationRequested bool   `json:"escalation_requested"`
	EscalationReason    string `json:"escalation_reason,omitempty"`
}

// Session is the per-phone conversation record. The session manager owns all
// mutation; handlers only read sessions and request changes.
type Session struct {
	ID           string         `json:"id"`
	Phone        string         `json:"phone"`
	UserName     string         `json:"user_name,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	LastActivity time.Time      `json:"last_activity"`
	Status       SessionStatus  `json:"status"`
	Context      SessionContext `json:"context"`
	History      []HistoryEntry `json:"history"`
	Flags        SessionFlags   `json:"flags"`
}

// Expired reports whether the session has been idle longer than the timeout.
func (s *Session) Expired(now time.Time) bool {
	return now.Sub(s.LastActivity) > SessionIdleTimeout
}

// RecentHistory returns up to n of the most recent history entries in order.
func (s *Session) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
