package models

import (
	"time"

	"gorm.io/datatypes"
)

// Provider stores a configured vendor account/connection.
type Provider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name string `gorm:"type:varchar(255);not null"` // Display name.

	// Type selects the vendor adapter and is immutable after creation.
	Type string `gorm:"type:varchar(64);not null;index"` // Provider type tag.

	BaseURL string `gorm:"type:text"` // Base URL override.

	// APIKeyEncrypted holds the credential as ivHex:tagHex:cipherHex.
	// Plaintext credentials are never stored.
	APIKeyEncrypted *string `gorm:"type:text"`                           // Encrypted credential.
	AuthScheme      string  `gorm:"type:varchar(32);default:'bearer'"`   // Auth scheme.
	AuthHeader      string  `gorm:"type:varchar(128)"`                   // Custom auth header name.

	Capabilities datatypes.JSON `gorm:"type:jsonb"` // Free-form capability tag list.

	CostTier    string `gorm:"type:varchar(16);not null;default:'medium'"`   // free/low/medium/high.
	QualityTier string `gorm:"type:varchar(16);not null;default:'balanced'"` // fast/balanced/premium.

	IsEnabled   bool       `gorm:"not null;index"` // Whether the provider is a routing candidate.
	IsValidated bool       `gorm:"not null;default:false"`      // Last connectivity check outcome.
	ValidatedAt *time.Time // Last connectivity check time.

	Models []Model `gorm:"foreignKey:ProviderID;constraint:OnDelete:CASCADE"` // Owned models.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Model stores a specific deployable model under a provider.
type Model struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID uint64 `gorm:"not null;index"` // Owning provider ID.

	ModelID string `gorm:"type:varchar(255);not null;index"` // Vendor-specific model identifier.
	Name    string `gorm:"type:varchar(255)"`                // Display name.

	ContextWindow *int `gorm:"type:bigint"` // Max context length; nil when unknown.

	SupportsVision bool `gorm:"not null;default:false"` // Vision capability flag.
	SupportsTools  bool `gorm:"not null;default:false"` // Tool-calling capability flag.

	DefaultParams datatypes.JSON `gorm:"type:jsonb"` // Default parameter overrides.

	// IsDefault marks the provider's preferred model. Sync never removes a
	// default-marked model even when the vendor stops advertising it.
	IsDefault bool `gorm:"not null;default:false"` // Provider default flag.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
