package pricesync

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

// StorePrices upserts price rows and prunes rows missing from the payload.
// An empty payload never prunes.
func StorePrices(ctx context.Context, db *gorm.DB, rows []models.ModelPrice, syncTime time.Time) error {
	if db == nil {
		return fmt.Errorf("pricesync: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if syncTime.IsZero() {
		syncTime = time.Now().UTC()
	}
	syncTime = syncTime.UTC()

	if len(rows) == 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			rows[i].LastSeenAt = syncTime
			rows[i].UpdatedAt = syncTime
		}
		if errUpsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_name"}, {Name: "model_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"context_limit",
				"output_limit",
				"input_price",
				"output_price",
				"last_seen_at",
				"updated_at",
			}),
		}).Create(&rows).Error; errUpsert != nil {
			return fmt.Errorf("pricesync: upsert: %w", errUpsert)
		}

		if errPrune := tx.Where("last_seen_at < ?", syncTime).Delete(&models.ModelPrice{}).Error; errPrune != nil {
			return fmt.Errorf("pricesync: prune: %w", errPrune)
		}
		return nil
	})
}
