package routing

import "testing"

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		message   string
		retryable bool
	}{
		{"429 Too Many Requests", true},
		{"Rate limit exceeded, retry later", true},
		{"503 Service Unavailable", true},
		{"model is overloaded", true},
		{"connection refused", true},
		{"context deadline exceeded", true},
		{"dial tcp: no such host", true},
		{"502 Bad Gateway", true},
		{"internal server error", true},
		{"401 Unauthorized", false},
		{"403 Forbidden", false},
		{"400 Bad Request: missing field", false},
		{"Invalid API key provided", false},
		{"something completely unknown", true},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.message); got != tc.retryable {
			t.Errorf("IsRetryable(%q) = %v, want %v", tc.message, got, tc.retryable)
		}
	}
}

func TestIsRetryableFirstMatchWins(t *testing.T) {
	// "429" appears before the client-error rule, so a message carrying both
	// markers is classified by the earlier rule.
	if !IsRetryable("got 429 after 401 refresh") {
		t.Fatal("rate limit rule must win over client-error rule")
	}
}
