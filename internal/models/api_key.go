package models

import "time"

// APIKey identifies a gateway caller. Only a SHA-256 digest of the key is
// stored; the plaintext is shown once at creation.
type APIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name    string `gorm:"type:varchar(255)"`                     // Display name.
	KeyHash string `gorm:"type:varchar(64);not null;uniqueIndex"` // SHA-256 hex digest of the key.
	Prefix  string `gorm:"type:varchar(16)"`                      // First characters for display.

	RateLimit int `gorm:"not null;default:0"` // Requests per second; 0 means unlimited.

	IsEnabled bool `gorm:"not null"` // Whether the key may call the gateway.

	LastUsedAt *time.Time // Last successful authentication time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Admin represents a dashboard administrator account.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:varchar(255);not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`                     // bcrypt password hash.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
