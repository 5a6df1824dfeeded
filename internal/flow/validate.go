package flow

import (
	"strings"
	"unicode"
)

// Minimum shape of a usable collective visit submission.
const (
	minCollectiveInfoLength = 20
	minCollectiveInfoWords  = 5
)

// ValidCollectiveInfo reports whether a collective visit submission carries
// enough detail for the team to follow up: a minimum length and word count,
// and at least one contact handle (an email-ish @ or a digit for a phone
// number or headcount).
func ValidCollectiveInfo(submission string) bool {
	trimmed := strings.TrimSpace(submission)
	if len(trimmed) < minCollectiveInfoLength {
		return false
	}
	if len(strings.Fields(trimmed)) < minCollectiveInfoWords {
		return false
	}

	if strings.ContainsRune(trimmed, '@') {
		return true
	}
	for _, r := range trimmed {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
