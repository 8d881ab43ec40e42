package ratelimit

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

// ResolveLimit resolves the effective rate limit for a caller key: the
// key's own limit when set, otherwise the server-wide default.
func ResolveLimit(ctx context.Context, db *gorm.DB, apiKeyID uint64, defaultLimit int) (Decision, error) {
	if db == nil || apiKeyID == 0 {
		return Decision{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var row struct {
		RateLimit int
	}
	errFind := db.WithContext(ctx).
		Model(&models.APIKey{}).
		Select("rate_limit").
		Where("id = ?", apiKeyID).
		Take(&row).Error
	if errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return Decision{}, errFind
	}
	if row.RateLimit > 0 {
		return Decision{Limit: row.RateLimit, Scope: ScopeAPIKey}, nil
	}

	if defaultLimit > 0 {
		return Decision{Limit: defaultLimit, Scope: ScopeAPIKey}, nil
	}
	return Decision{}, nil
}
