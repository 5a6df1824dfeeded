// Package flow implements the conversational engine: a static router that
// classifies most inbound messages without any model call, the handlers that
// produce replies and advance the session, and the AI fallback for free text
// the router cannot place.
package flow

import (
	"strings"

	"github.com/beforest-co/supportbot/internal/models"
)

// RouteKind identifies which handler an inbound message is routed to.
type RouteKind string

const (
	RouteWelcome           RouteKind = "welcome"
	RouteMainMenu          RouteKind = "main_menu"
	RouteCollectiveInfo    RouteKind = "collective_info_submission"
	RouteConfirmation      RouteKind = "confirmation_response"
	RouteNumberedOption    RouteKind = "numbered_option"
	RouteHospitalityOption RouteKind = "hospitality_option"
	RouteAccommodation     RouteKind = "specific_accommodation"
	RouteCollectiveVisit   RouteKind = "collective_visit"
	RouteExperiences       RouteKind = "experiences"
	RouteBewildProduce     RouteKind = "bewild_produce"
	RouteHospitality       RouteKind = "hospitality"
	RouteGeneralQuery      RouteKind = "general_query"
	RouteAcknowledgment    RouteKind = "acknowledgment"
	RouteEscalation        RouteKind = "escalation"
)

// Route is a static routing decision. Reason names the rule that matched, for
// logs only; Param carries the rule's argument (a digit, an accommodation
// name, or the original message for flow-scoped rules).
type Route struct {
	Kind   RouteKind
	Reason string
	Param  string
}

// greetings are matched exactly against the normalized message.
var greetings = []string{"hello", "hi", "hey", "start", "hola", "oi", "namaste"}

// menuKeywords are matched by containment.
var menuKeywords = []string{"menu", "help", "options", "0", "main", "back", "start over"}

// acknowledgmentKeywords are matched by containment, after all service
// keywords have had their chance.
var acknowledgmentKeywords = []string{"thank you", "thanks", "ok", "okay", "good", "great", "perfect", "yes", "no"}

// escalationKeywords are matched exactly.
var escalationKeywords = []string{"agent", "human", "representative", "manager", "escalate"}

// keywordRoute is one entry of the service keyword table.
type keywordRoute struct {
	keyword string
	kind    RouteKind
	reason  string
}

// serviceKeywords map free-text keywords to service handlers. Order matters:
// earlier entries win, and the table only runs after the specific
// accommodation checks so "blyton bungalow booking" routes to the stay, not
// the generic hospitality menu.
var serviceKeywords = []keywordRoute{
	{"collective", RouteCollectiveVisit, "collective_keyword"},
	{"group visit", RouteCollectiveVisit, "collective_keyword"},
	{"team outing", RouteCollectiveVisit, "collective_keyword"},
	{"experience", RouteExperiences, "experience_keyword"},
	{"forest experience", RouteExperiences, "experience_keyword"},
	{"nature", RouteExperiences, "experience_keyword"},
	{"bewild", RouteBewildProduce, "bewild_keyword"},
	{"products", RouteBewildProduce, "bewild_keyword"},
	{"honey", RouteBewildProduce, "bewild_keyword"},
	{"accommodation", RouteHospitality, "hospitality_keyword"},
	{"stay", RouteHospitality, "hospitality_keyword"},
	{"booking", RouteHospitality, "hospitality_keyword"},
	{"query", RouteGeneralQuery, "query_keyword"},
	{"question", RouteGeneralQuery, "query_keyword"},
	{"support", RouteGeneralQuery, "query_keyword"},
	{"help", RouteGeneralQuery, "query_keyword"},
	{"contact", RouteGeneralQuery, "query_keyword"},
}

// StaticRoute classifies a message against the ordered routing rules. Returns
// false when no rule matches, meaning the message goes to the AI fallback.
// The rules are strictly ordered; a later rule never fires when an earlier
// one matches.
func StaticRoute(message string, sessionCtx models.SessionContext) (Route, bool) {
	normalized := strings.ToLower(strings.TrimSpace(message))

	// 1. Greetings, exact match.
	for _, g := range greetings {
		if normalized == g {
			return Route{Kind: RouteWelcome, Reason: "greeting"}, true
		}
	}

	// 2. Menu requests, containment.
	for _, k := range menuKeywords {
		if strings.Contains(normalized, k) {
			return Route{Kind: RouteMainMenu, Reason: "menu_request"}, true
		}
	}

	// 3. Flow-scoped routing. A session gathering collective details consumes
	// any free text; a session awaiting confirmation consumes the reply.
	if sessionCtx.CurrentFlow == models.FlowCollectiveInfoGathering {
		return Route{Kind: RouteCollectiveInfo, Reason: "info_submission", Param: message}, true
	}
	if sessionCtx.CurrentFlow == models.FlowIntentConfirmation {
		return Route{Kind: RouteConfirmation, Reason: "confirmation", Param: message}, true
	}

	// 4. Numbered main menu options, only outside sub-flows.
	if isDigitOption(normalized, 5) && (sessionCtx.CurrentFlow == "" ||
		sessionCtx.CurrentFlow == models.FlowMainMenu || sessionCtx.CurrentFlow == models.FlowWelcome) {
		return Route{Kind: RouteNumberedOption, Reason: "main_menu_option", Param: normalized}, true
	}

	// 5. Hospitality sub-menu options.
	if sessionCtx.CurrentFlow == models.FlowHospitality && isDigitOption(normalized, 2) {
		return Route{Kind: RouteHospitalityOption, Reason: "hospitality_option", Param: normalized}, true
	}

	// 6a. Specific accommodations, before the generic hospitality keywords.
	if strings.Contains(normalized, "coorg") || strings.Contains(normalized, "blyton") || strings.Contains(normalized, "bungalow") {
		return Route{Kind: RouteAccommodation, Reason: "specific_accommodation_blyton", Param: AccommodationBlyton}, true
	}
	if strings.Contains(normalized, "glamping") || strings.Contains(normalized, "hyderabad tent") || strings.Contains(normalized, "hyderabad camp") {
		return Route{Kind: RouteAccommodation, Reason: "specific_accommodation_glamping", Param: AccommodationGlamping}, true
	}

	// 6b. Service keyword table.
	for _, entry := range serviceKeywords {
		if strings.Contains(normalized, entry.keyword) {
			return Route{Kind: entry.kind, Reason: entry.reason}, true
		}
	}

	// 7. Acknowledgments.
	for _, k := range acknowledgmentKeywords {
		if strings.Contains(normalized, k) {
			return Route{Kind: RouteAcknowledgment, Reason: "acknowledgment"}, true
		}
	}

	// 8. Escalation requests, exact match.
	for _, k := range escalationKeywords {
		if normalized == k {
			return Route{Kind: RouteEscalation, Reason: "escalation_request", Param: "user_requested"}, true
		}
	}

	// 9. No static rule fired; the AI fallback takes it.
	return Route{}, false
}

// isDigitOption reports whether s is a single digit between "1" and max.
func isDigitOption(s string, max int) bool {
	if len(s) != 1 || s[0] < '1' {
		return false
	}
	return int(s[0]-'0') <= max
}
