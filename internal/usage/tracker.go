// Package usage records generation attempts and aggregates them into
// period-based consumption figures. Raw rows are rolled up monthly; rollup is
// guaranteed to exist before raw rows in a period are purged.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/pricing"
)

// Attempt describes one generation attempt to record.
type Attempt struct {
	ProviderID   uint64
	Provider     string // Provider type tag.
	ModelID      string
	FeatureType  string
	RequestID    string
	APIKeyID     *uint64
	InputTokens  int
	OutputTokens int
	Rates        pricing.Rates
	Latency      time.Duration
	ErrorMessage string // Failure detail; ignored by TrackUsage.
	FailoverFrom string // Provider first attempted, when this followed a fallback.
	RequestedAt  time.Time
}

// Tracker persists usage records.
type Tracker struct {
	db *gorm.DB
}

// NewTracker constructs a Tracker.
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// TrackUsage appends a successful usage record with its computed cost.
func (t *Tracker) TrackUsage(ctx context.Context, attempt Attempt) error {
	row := t.rowOf(attempt)
	row.Success = true
	row.Cost = pricing.Cost(attempt.InputTokens, attempt.OutputTokens, attempt.Rates)
	if errCreate := t.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("usage: track usage: %w", errCreate)
	}
	return nil
}

// TrackFailure appends a zero-cost failed usage record.
func (t *Tracker) TrackFailure(ctx context.Context, attempt Attempt) error {
	row := t.rowOf(attempt)
	row.Success = false
	row.ErrorMessage = attempt.ErrorMessage
	if errCreate := t.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("usage: track failure: %w", errCreate)
	}
	return nil
}

func (t *Tracker) rowOf(attempt Attempt) models.Usage {
	requestedAt := attempt.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = time.Now().UTC()
	}
	return models.Usage{
		ProviderID:   attempt.ProviderID,
		Provider:     strings.TrimSpace(attempt.Provider),
		ModelID:      strings.TrimSpace(attempt.ModelID),
		FeatureType:  strings.TrimSpace(attempt.FeatureType),
		RequestID:    strings.TrimSpace(attempt.RequestID),
		APIKeyID:     attempt.APIKeyID,
		InputTokens:  attempt.InputTokens,
		OutputTokens: attempt.OutputTokens,
		LatencyMS:    attempt.Latency.Milliseconds(),
		FailoverFrom: strings.TrimSpace(attempt.FailoverFrom),
		RequestedAt:  requestedAt,
	}
}

// PeriodStart returns the local start of the period containing now: midnight
// for daily, the week's first day for weekly, the 1st for monthly.
func PeriodStart(period string, now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch period {
	case models.BudgetPeriodWeekly:
		return midnight.AddDate(0, 0, -int(now.Weekday()))
	case models.BudgetPeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	default:
		return midnight
	}
}

// PeriodCost sums successful-attempt cost over the period containing now.
func (t *Tracker) PeriodCost(ctx context.Context, period string, now time.Time) (float64, error) {
	start := PeriodStart(period, now)
	var total float64
	errSum := t.db.WithContext(ctx).
		Model(&models.Usage{}).
		Select("COALESCE(SUM(cost), 0)").
		Where("requested_at >= ? AND requested_at <= ?", start.UTC(), now.UTC()).
		Scan(&total).Error
	if errSum != nil {
		return 0, fmt.Errorf("usage: period cost: %w", errSum)
	}
	return total, nil
}

// RollupMonth aggregates one month's raw usage into usage_monthly rows.
func (t *Tracker) RollupMonth(ctx context.Context, month time.Time) error {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	end := start.AddDate(0, 1, 0)
	label := start.Format("2006-01")

	// aggRow holds one grouped aggregation result.
	type aggRow struct {
		ProviderID   uint64
		Provider     string
		ModelID      string
		FeatureType  string
		RequestCount int
		SuccessCount int
		InputTokens  int64
		OutputTokens int64
		TotalCost    float64
	}

	var groups []aggRow
	errGroup := t.db.WithContext(ctx).
		Model(&models.Usage{}).
		Select(`provider_id, provider, model_id, feature_type,
			COUNT(*) AS request_count,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(cost), 0) AS total_cost`).
		Where("requested_at >= ? AND requested_at < ?", start.UTC(), end.UTC()).
		Group("provider_id, provider, model_id, feature_type").
		Scan(&groups).Error
	if errGroup != nil {
		return fmt.Errorf("usage: rollup aggregate: %w", errGroup)
	}
	if len(groups) == 0 {
		return nil
	}

	rows := make([]models.UsageMonthly, 0, len(groups))
	for _, group := range groups {
		rows = append(rows, models.UsageMonthly{
			Month:        label,
			ProviderID:   group.ProviderID,
			Provider:     group.Provider,
			ModelID:      group.ModelID,
			FeatureType:  group.FeatureType,
			RequestCount: group.RequestCount,
			SuccessCount: group.SuccessCount,
			InputTokens:  group.InputTokens,
			OutputTokens: group.OutputTokens,
			TotalCost:    group.TotalCost,
		})
	}

	if errUpsert := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "month"}, {Name: "provider_id"}, {Name: "model_id"}, {Name: "feature_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"request_count", "success_count", "input_tokens", "output_tokens", "total_cost", "updated_at",
		}),
	}).Create(&rows).Error; errUpsert != nil {
		return fmt.Errorf("usage: rollup upsert: %w", errUpsert)
	}
	return nil
}

// PurgeWithRetention deletes raw usage rows older than the retention window,
// month by month, rolling each month up first so the aggregate always exists
// before its raw rows disappear. retentionDays <= 0 keeps raw rows forever.
func (t *Tracker) PurgeWithRetention(ctx context.Context, retentionDays int, now time.Time) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	// Only whole months strictly before the cutoff's month are purged.
	boundary := time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, cutoff.Location())

	var oldest struct {
		RequestedAt time.Time
	}
	errOldest := t.db.WithContext(ctx).
		Model(&models.Usage{}).
		Select("requested_at").
		Where("requested_at < ?", boundary.UTC()).
		Order("requested_at ASC").
		Limit(1).
		Scan(&oldest).Error
	if errOldest != nil {
		return fmt.Errorf("usage: find oldest: %w", errOldest)
	}
	if oldest.RequestedAt.IsZero() {
		return nil
	}

	month := time.Date(oldest.RequestedAt.Year(), oldest.RequestedAt.Month(), 1, 0, 0, 0, 0, boundary.Location())
	for month.Before(boundary) {
		if errRollup := t.RollupMonth(ctx, month); errRollup != nil {
			return errRollup
		}
		end := month.AddDate(0, 1, 0)
		if errDelete := t.db.WithContext(ctx).
			Where("requested_at >= ? AND requested_at < ?", month.UTC(), end.UTC()).
			Delete(&models.Usage{}).Error; errDelete != nil {
			return fmt.Errorf("usage: purge month: %w", errDelete)
		}
		month = end
	}
	return nil
}

const rollupInterval = time.Hour

// StartRollup runs the monthly rollup and retention purge in the background.
func (t *Tracker) StartRollup(ctx context.Context, retentionDays int) {
	if t == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(rollupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if errRollup := t.RollupMonth(ctx, now); errRollup != nil {
					log.WithError(errRollup).Warn("usage rollup failed")
				}
				if errPurge := t.PurgeWithRetention(ctx, retentionDays, now); errPurge != nil {
					log.WithError(errPurge).Warn("usage purge failed")
				}
			}
		}
	}()
	log.Infof("usage rollup started (interval=%s, retention=%dd)", rollupInterval, retentionDays)
}
