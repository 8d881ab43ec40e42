package security

import (
	"strings"
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hashed, errHash := HashPassword("correct horse battery staple")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hashed == "correct horse battery staple" {
		t.Fatal("password stored in plaintext")
	}
	if !VerifyPassword(hashed, "correct horse battery staple") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hashed, "wrong password") {
		t.Fatal("wrong password accepted")
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	token, errIssue := IssueAdminToken("unit-secret", time.Hour, 42, "root")
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}

	claims, errParse := ParseAdminToken("unit-secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.AdminID != 42 || claims.Username != "root" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > time.Hour {
		t.Fatalf("expiry not bounded: %v", claims.ExpiresAt)
	}
}

func TestAdminTokenWrongSecretRejected(t *testing.T) {
	token, errIssue := IssueAdminToken("secret-a", time.Hour, 1, "root")
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	if _, errParse := ParseAdminToken("secret-b", token); errParse == nil {
		t.Fatal("token verified against the wrong secret")
	}
}

func TestAdminTokenExpiryEnforced(t *testing.T) {
	token, errIssue := IssueAdminToken("unit-secret", -2*time.Hour, 1, "root")
	if errIssue != nil {
		t.Fatalf("issue: %v", errIssue)
	}
	// Negative expiry falls back to the default window, so the token must
	// still be valid.
	if _, errParse := ParseAdminToken("unit-secret", token); errParse != nil {
		t.Fatalf("default expiry token rejected: %v", errParse)
	}
}

func TestIssueAdminTokenEmptySecret(t *testing.T) {
	if _, errIssue := IssueAdminToken("  ", time.Hour, 1, "root"); errIssue == nil {
		t.Fatal("empty secret must be rejected")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	first, errFirst := GenerateAPIKey()
	if errFirst != nil {
		t.Fatalf("generate: %v", errFirst)
	}
	second, errSecond := GenerateAPIKey()
	if errSecond != nil {
		t.Fatalf("generate: %v", errSecond)
	}
	if first == second {
		t.Fatal("generated keys must be unique")
	}
	if !strings.HasPrefix(first, "llmgw-") {
		t.Fatalf("key missing prefix: %q", first)
	}
	if len(first) != len("llmgw-")+64 {
		t.Fatalf("key length = %d", len(first))
	}
}

func TestHashAPIKeyIsStable(t *testing.T) {
	key := "llmgw-deadbeef"
	if HashAPIKey(key) != HashAPIKey(key) {
		t.Fatal("hash must be deterministic")
	}
	if HashAPIKey(key) == key {
		t.Fatal("hash must not echo the key")
	}
	if len(HashAPIKey(key)) != 64 {
		t.Fatalf("digest length = %d", len(HashAPIKey(key)))
	}
}

func TestKeyPrefix(t *testing.T) {
	if prefix := KeyPrefix("llmgw-0123456789abcdef"); prefix != "llmgw-012345" {
		t.Fatalf("prefix = %q", prefix)
	}
	if prefix := KeyPrefix("short"); prefix != "short" {
		t.Fatalf("short key prefix = %q", prefix)
	}
}
