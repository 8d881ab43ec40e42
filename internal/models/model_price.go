package models

import "time"

// ModelPrice stores per-model pricing references synced from models.dev.
// When a matching row exists it takes precedence over the static per-provider
// pricing table.
type ModelPrice struct {
	ProviderName string `gorm:"type:varchar(255);not null;primaryKey"` // Provider name.
	ModelName    string `gorm:"type:varchar(255);not null;primaryKey"` // Model name.

	ContextLimit int `gorm:"not null;default:0"` // Max context length.
	OutputLimit  int `gorm:"not null;default:0"` // Max output tokens.

	InputPrice  *float64 `gorm:"type:decimal(20,10)"` // USD per 1M input tokens.
	OutputPrice *float64 `gorm:"type:decimal(20,10)"` // USD per 1M output tokens.

	LastSeenAt time.Time `gorm:"not null;index"`          // Last sync timestamp.
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime"` // Update timestamp.
}

// TableName overrides the default table name.
func (ModelPrice) TableName() string {
	return "model_prices"
}
