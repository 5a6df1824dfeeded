package templates

// Well-known template keys. Handlers request copy by these keys; operators
// override the content through the message_templates table.
const (
	KeyWelcomeMessage      = "welcome_message"
	KeyMainMenu            = "main_menu"
	KeyErrorFallback       = "error_fallback"
	KeyCollectiveVisitInfo = "collective_visit_info"
	KeyExperiences         = "experiences_message"
	KeyBewildProduce       = "bewild_message"
	KeyHospitalityOptions  = "hospitality_options"
	KeyContactTeam         = "contact_team_message"
)

// fallbackMessages are the built-in copies of the critical messages, used when
// the template table is unreachable or a key is missing.
var fallbackMessages = map[string]string{
	KeyWelcomeMessage: `Hello! Welcome to Beforest 🌿

*How can we help you today?*

1. Collective Visit
2. Beforest Experiences
3. Bewild Produce
4. Beforest Hospitality
5. Contact Us

Type a number or "menu" anytime.`,

	KeyMainMenu: `*How can we help?*

1. Collective Visit
2. Beforest Experiences
3. Bewild Produce
4. Beforest Hospitality
5. Contact Us

Type a number to continue.`,

	KeyErrorFallback: `I don't have that information readily available right now.

Please choose from our menu:
1. Collective Visit
2. Beforest Experiences
3. Bewild Produce
4. Beforest Hospitality
5. Contact Us

Or type "menu" to see options.`,

	KeyCollectiveVisitInfo: `*Collective Visit*

Please share these details in one message:

• Your name
• Email
• Purpose of visit
• Number of people
• Preferred date/time
• Special requirements (if any)`,

	KeyExperiences: `*Beforest Experiences*

Immersive nature journeys that leave you with joy and a sense of belonging.

Explore upcoming experiences:
https://experiences.beforest.co/`,

	KeyBewildProduce: `*Bewild Produce*

Good food from good practices — where forests and agriculture flourish together.

Discover more:
https://bewild.life/`,

	KeyHospitalityOptions: `*Beforest Hospitality*

Choose your perfect stay:

1. *Blyton Bungalow, Poomaale Collective, Coorg*
   Heritage bungalow in coffee plantations

2. *Glamping, Hyderabad Collective*
   Luxury tents with modern amenities

Please select 1 or 2 to continue.`,

	KeyContactTeam: `*Contact Us*

📧 crm@beforest.co
📞 +91 7680070541

*Available:* Monday to Friday, 10am-6pm`,
}

// FallbackMessage returns the built-in content for a key. Unknown keys get the
// generic error fallback so callers always have something to send.
func FallbackMessage(key string) string {
	if msg, ok := fallbackMessages[key]; ok {
		return msg
	}
	return fallbackMessages[KeyErrorFallback]
}
