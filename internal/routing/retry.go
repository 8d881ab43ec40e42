package routing

import "strings"

// classificationRule pairs an error-message predicate with a retryability
// verdict. Rules are evaluated in order; the first match wins.
type classificationRule struct {
	patterns  []string
	retryable bool
}

// classificationRules is the data-driven retryability policy, matched
// case-insensitively against the error message.
var classificationRules = []classificationRule{
	// Rate limiting: the next provider has its own quota.
	{patterns: []string{"rate limit", "rate_limit", "429", "too many requests"}, retryable: true},
	// Service unavailable.
	{patterns: []string{"503", "service unavailable", "overloaded"}, retryable: true},
	// Network and timeout failures.
	{patterns: []string{"network", "timeout", "econnrefused", "connection refused", "enotfound", "no such host", "fetch failed", "context deadline exceeded"}, retryable: true},
	// Other server errors.
	{patterns: []string{"500", "502", "504", "internal server error", "bad gateway"}, retryable: true},
	// Client errors signal a malformed request or bad credential; switching
	// providers is not expected to fix those.
	{patterns: []string{"400", "401", "403", "bad request", "unauthorized", "forbidden", "invalid api key", "invalid_api_key"}, retryable: false},
}

// IsRetryable classifies an error message. Unknown failures default to
// retryable: they are assumed transient.
func IsRetryable(message string) bool {
	lowered := strings.ToLower(message)
	for _, rule := range classificationRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(lowered, pattern) {
				return rule.retryable
			}
		}
	}
	return true
}
