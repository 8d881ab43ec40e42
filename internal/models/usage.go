package models

import "time"

// Usage records one generation attempt, success or failure.
type Usage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID uint64 `gorm:"not null;index"`                   // Serving provider ID.
	Provider   string `gorm:"type:varchar(64);not null;index"`  // Provider type tag.
	ModelID    string `gorm:"type:varchar(255);not null;index"` // Model identifier.

	FeatureType string `gorm:"type:varchar(128);index"` // Requested feature type.
	RequestID   string `gorm:"type:varchar(64);index"`  // Per-request trace ID.

	APIKeyID *uint64 `gorm:"index"` // Caller identity, when known.

	InputTokens  int `gorm:"not null;default:0"` // Prompt tokens.
	OutputTokens int `gorm:"not null;default:0"` // Completion tokens.

	Cost      float64 `gorm:"type:decimal(20,10);not null;default:0"` // Computed cost (USD).
	LatencyMS int64   `gorm:"not null;default:0"`                     // Response latency in milliseconds.

	Success      bool   `gorm:"not null;index"` // Whether the attempt succeeded.
	ErrorMessage string `gorm:"type:text"`      // Failure detail, empty on success.

	// FailoverFrom names the provider first attempted when this attempt
	// followed a fallback.
	FailoverFrom string `gorm:"type:varchar(64)"` // Failover source provider.

	RequestedAt time.Time `gorm:"not null;index"`          // Attempt start time.
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"` // Row creation time.
}

// UsageMonthly aggregates usage per provider/model/feature for one month.
// Rows are written by the rollup job before raw usage in that month is
// eligible for retention purge.
type UsageMonthly struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Month       string `gorm:"type:varchar(7);not null;uniqueIndex:idx_usage_monthly_key"`    // YYYY-MM.
	ProviderID  uint64 `gorm:"not null;uniqueIndex:idx_usage_monthly_key"`                    // Provider ID.
	Provider    string `gorm:"type:varchar(64);not null"`                                     // Provider type tag.
	ModelID     string `gorm:"type:varchar(255);not null;uniqueIndex:idx_usage_monthly_key"`  // Model identifier.
	FeatureType string `gorm:"type:varchar(128);not null;uniqueIndex:idx_usage_monthly_key"`  // Feature type.

	RequestCount int     `gorm:"not null;default:0"`                     // Total attempts.
	SuccessCount int     `gorm:"not null;default:0"`                     // Successful attempts.
	InputTokens  int64   `gorm:"not null;default:0"`                     // Summed prompt tokens.
	OutputTokens int64   `gorm:"not null;default:0"`                     // Summed completion tokens.
	TotalCost    float64 `gorm:"type:decimal(20,10);not null;default:0"` // Summed cost (USD).

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Row creation time.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update time.
}
