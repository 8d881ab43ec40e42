package routing

import "strings"

// refusalMaxLength gates refusal detection to short responses. A canned
// refusal is brief; long answers that merely contain a refusal-shaped
// substring (JSON payloads especially) must not be misclassified.
const refusalMaxLength = 500

// refusalMarkers are phrasings consistent with a canned model refusal.
var refusalMarkers = []string{
	"i'm sorry, i can't",
	"i'm sorry, but i can't",
	"i am sorry, i cannot",
	"i am sorry, but i cannot",
	"i cannot assist with",
	"i can't assist with",
	"i am unable to",
	"i'm unable to",
	"i cannot help with",
	"i can't help with",
	"as an ai, i cannot",
	"as an ai, i can't",
	"i cannot fulfill",
	"i can't fulfill",
}

// IsRefusal reports whether the generated text looks like a canned refusal.
// Only responses shorter than 500 characters are considered.
func IsRefusal(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len(trimmed) >= refusalMaxLength {
		return false
	}
	lowered := strings.ToLower(trimmed)
	for _, marker := range refusalMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
