package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBudgetExhausted gates generation while a configured spending ceiling is
// spent.
var ErrBudgetExhausted = errors.New("routing: budget exhausted")

// AttemptFailure records one failed candidate attempt.
type AttemptFailure struct {
	Provider  string        // Provider type tag.
	Message   string        // Error detail.
	Timestamp time.Time     // Attempt start time.
	Duration  time.Duration // Attempt duration.
}

// ExhaustedError is raised when every candidate has been exhausted (or the
// chain was aborted by a fatal failure). It carries the ordered per-candidate
// failure list and offers a generic end-user-safe message separate from its
// diagnostic detail.
type ExhaustedError struct {
	FeatureType string
	Attempts    []AttemptFailure
}

// Error returns the diagnostic message concatenating all underlying errors.
func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("routing: no providers available for feature %q", e.FeatureType)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, attempt := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", attempt.Provider, attempt.Message))
	}
	return fmt.Sprintf("routing: all %d provider(s) failed for feature %q: %s",
		len(e.Attempts), e.FeatureType, strings.Join(parts, "; "))
}

// UserMessage returns a generic message safe to show end users.
func (e *ExhaustedError) UserMessage() string {
	return "The AI service is temporarily unavailable. Please try again shortly."
}
