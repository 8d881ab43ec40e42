package models

import (
	"time"

	"gorm.io/datatypes"
)

// Feature mapping match modes.
const (
	// MatchModeAutoTag selects candidates by tag filters.
	MatchModeAutoTag = "auto_tag"
	// MatchModeSpecificModel pins a single model.
	MatchModeSpecificModel = "specific_model"
)

// Feature mapping fallback modes.
const (
	// FallbackNextPriority continues to lower-priority rules.
	FallbackNextPriority = "next_priority"
	// FallbackAnyAvailable allows any available candidate.
	FallbackAnyAvailable = "any_available"
	// FallbackFail halts rule evaluation at this rule.
	FallbackFail = "fail"
)

// FeatureMapping binds a logical feature name to a selection strategy.
type FeatureMapping struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FeatureType string `gorm:"type:varchar(128);not null;uniqueIndex:idx_feature_priority"` // Logical feature name.
	MatchMode   string `gorm:"type:varchar(32);not null;default:'auto_tag'"`                // auto_tag or specific_model.

	RequiredTags datatypes.JSON `gorm:"type:jsonb"` // Tags every candidate must satisfy.
	ExcludedTags datatypes.JSON `gorm:"type:jsonb"` // Tags no candidate may satisfy.

	ModelRefID *uint64 `gorm:"index"`                 // Pinned model ID (specific_model only).
	ModelRef   *Model  `gorm:"foreignKey:ModelRefID"` // Pinned model record.

	Priority     int    `gorm:"not null;default:0;uniqueIndex:idx_feature_priority"` // Higher evaluates first.
	FallbackMode string `gorm:"type:varchar(32);not null;default:'next_priority'"`   // next_priority/any_available/fail.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
