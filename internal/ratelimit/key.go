package ratelimit

import "fmt"

// KeyForDecision builds a limiter key for the resolved scope.
func KeyForDecision(apiKeyID uint64, decision Decision) string {
	if apiKeyID == 0 || decision.Limit <= 0 {
		return ""
	}
	switch decision.Scope {
	case ScopeAPIKey:
		return fmt.Sprintf("k:%d", apiKeyID)
	default:
		return ""
	}
}
