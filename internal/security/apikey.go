package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// apiKeyPrefix marks gateway caller keys so they are recognizable in logs
// and configuration files.
const apiKeyPrefix = "llmgw-"

// GenerateAPIKey returns a new random caller key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("security: generate api key: %w", errRead)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey returns the SHA-256 hex digest stored in place of the
// plaintext key.
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the display prefix of a caller key.
func KeyPrefix(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12]
}
