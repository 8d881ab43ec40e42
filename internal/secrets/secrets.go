// Package secrets encrypts provider credentials for storage. The wire format
// is ivHex:authTagHex:ciphertextHex produced by AES-256-GCM with a random
// 16-byte IV per encryption.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const ivSize = 16

// ErrMalformedSecret indicates a stored secret missing one of its
// colon-delimited segments.
var ErrMalformedSecret = errors.New("secrets: malformed encrypted value")

// Cipher encrypts and decrypts credential strings with a fixed 256-bit key.
type Cipher struct {
	key [32]byte
}

// NewCipher derives a Cipher from the master key material. Any non-empty
// string is accepted; the 256-bit key is its SHA-256 digest.
func NewCipher(masterKey string) (*Cipher, error) {
	if strings.TrimSpace(masterKey) == "" {
		return nil, errors.New("secrets: empty master key")
	}
	return &Cipher{key: sha256.Sum256([]byte(masterKey))}, nil
}

// Encrypt seals plaintext into ivHex:authTagHex:ciphertextHex.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", errors.New("secrets: nil cipher")
	}
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("secrets: new gcm: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, errRead := rand.Read(iv); errRead != nil {
		return "", fmt.Errorf("secrets: read iv: %w", errRead)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	tagSize := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens a value produced by Encrypt. It fails closed when any of the
// three segments is absent or the authentication tag does not verify.
func (c *Cipher) Decrypt(value string) (string, error) {
	if c == nil {
		return "", errors.New("secrets: nil cipher")
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", ErrMalformedSecret
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return "", ErrMalformedSecret
		}
	}

	iv, errIV := hex.DecodeString(parts[0])
	if errIV != nil || len(iv) != ivSize {
		return "", ErrMalformedSecret
	}
	tag, errTag := hex.DecodeString(parts[1])
	if errTag != nil {
		return "", ErrMalformedSecret
	}
	ciphertext, errCipher := hex.DecodeString(parts[2])
	if errCipher != nil {
		return "", ErrMalformedSecret
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("secrets: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return "", fmt.Errorf("secrets: new gcm: %w", err)
	}
	if len(tag) != gcm.Overhead() {
		return "", ErrMalformedSecret
	}

	plaintext, errOpen := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if errOpen != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", errOpen)
	}
	return string(plaintext), nil
}

// maskPlaceholder joins the visible head and tail of a masked key.
const maskPlaceholder = "****"

// Mask renders a credential for display: first 3 and last 3 characters joined
// by a fixed placeholder. Keys of length 8 or less are fully masked.
func Mask(plaintext string) string {
	if len(plaintext) <= 8 {
		return "********"
	}
	return plaintext[:3] + maskPlaceholder + plaintext[len(plaintext)-3:]
}
