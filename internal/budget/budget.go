// Package budget tracks period spending against configured ceilings,
// raises threshold alerts, and provides the cost-aware candidate ordering
// used by smart routing.
package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/pricing"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/usage"
)

// Alert thresholds, in percent.
const (
	Threshold80  = 80
	Threshold100 = 100
)

// ErrUnknownPeriod indicates an unrecognized budget period name.
var ErrUnknownPeriod = errors.New("budget: unknown period")

// Status reports consumption against one period's ceiling.
type Status struct {
	Period    string
	Limit     float64
	Spent     float64
	Percent   float64
	Exhausted bool
}

// Alert is one fired threshold crossing.
type Alert struct {
	Period    string
	Threshold int
	Spent     float64
	Limit     float64
}

// Manager owns budget configuration and alert state.
type Manager struct {
	db      *gorm.DB
	tracker *usage.Tracker
}

// NewManager constructs a Manager.
func NewManager(db *gorm.DB, tracker *usage.Tracker) *Manager {
	return &Manager{db: db, tracker: tracker}
}

func validPeriod(period string) bool {
	switch period {
	case models.BudgetPeriodDaily, models.BudgetPeriodWeekly, models.BudgetPeriodMonthly:
		return true
	}
	return false
}

// Get loads one period's budget configuration.
func (m *Manager) Get(ctx context.Context, period string) (*models.BudgetConfig, error) {
	if !validPeriod(period) {
		return nil, ErrUnknownPeriod
	}
	var row models.BudgetConfig
	errFind := m.db.WithContext(ctx).Where("period = ?", period).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return &models.BudgetConfig{Period: period, AlertAt80: true, AlertAt100: true}, nil
		}
		return nil, fmt.Errorf("budget: load config: %w", errFind)
	}
	return &row, nil
}

// Upsert stores one period's ceiling and alert toggles.
func (m *Manager) Upsert(ctx context.Context, period string, limit float64, alert80, alert100 bool) (*models.BudgetConfig, error) {
	if !validPeriod(period) {
		return nil, ErrUnknownPeriod
	}
	if limit < 0 {
		limit = 0
	}

	var row models.BudgetConfig
	errFind := m.db.WithContext(ctx).Where("period = ?", period).Take(&row).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("budget: load config: %w", errFind)
		}
		row = models.BudgetConfig{Period: period}
	}

	row.Limit = limit
	row.AlertAt80 = alert80
	row.AlertAt100 = alert100
	if errSave := m.db.WithContext(ctx).Save(&row).Error; errSave != nil {
		return nil, fmt.Errorf("budget: save config: %w", errSave)
	}
	return &row, nil
}

// Status computes spending against the ceiling for one period.
func (m *Manager) Status(ctx context.Context, period string, now time.Time) (*Status, error) {
	cfg, err := m.Get(ctx, period)
	if err != nil {
		return nil, err
	}

	spent, errCost := m.tracker.PeriodCost(ctx, period, now)
	if errCost != nil {
		return nil, errCost
	}

	status := &Status{Period: period, Limit: cfg.Limit, Spent: spent}
	if cfg.Limit > 0 {
		status.Percent = spent / cfg.Limit * 100
		status.Exhausted = spent >= cfg.Limit
	}
	return status, nil
}

// CheckAlerts evaluates every period's thresholds and fires at most one
// alert per threshold per period. The state machine is monotonic: once the
// 100% alert has fired, dropping back over 80% does not re-alert; only Reset
// clears the state.
func (m *Manager) CheckAlerts(ctx context.Context, now time.Time) ([]Alert, error) {
	periods := []string{
		models.BudgetPeriodDaily,
		models.BudgetPeriodWeekly,
		models.BudgetPeriodMonthly,
	}

	fired := make([]Alert, 0)
	for _, period := range periods {
		var cfg models.BudgetConfig
		errFind := m.db.WithContext(ctx).Where("period = ?", period).Take(&cfg).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("budget: load config: %w", errFind)
		}
		if cfg.Limit <= 0 {
			continue
		}

		spent, errCost := m.tracker.PeriodCost(ctx, period, now)
		if errCost != nil {
			return nil, errCost
		}
		percent := spent / cfg.Limit * 100

		threshold := 0
		if percent >= Threshold100 && cfg.AlertAt100 {
			threshold = Threshold100
		} else if percent >= Threshold80 && cfg.AlertAt80 {
			threshold = Threshold80
		}
		if threshold == 0 || threshold <= cfg.LastAlertThreshold {
			continue
		}

		alertedAt := now.UTC()
		updates := map[string]any{
			"last_alert_threshold": threshold,
			"last_alert_at":        alertedAt,
			"updated_at":           alertedAt,
		}
		if errUpdate := m.db.WithContext(ctx).Model(&models.BudgetConfig{}).Where("id = ?", cfg.ID).Updates(updates).Error; errUpdate != nil {
			return nil, fmt.Errorf("budget: persist alert state: %w", errUpdate)
		}

		alert := Alert{Period: period, Threshold: threshold, Spent: spent, Limit: cfg.Limit}
		fired = append(fired, alert)
		log.Warnf("budget alert: %s period at %d%% (%.6f of %.6f)", period, threshold, spent, cfg.Limit)
	}
	return fired, nil
}

// Reset clears one period's alert state. Intended to run at period rollover.
func (m *Manager) Reset(ctx context.Context, period string) error {
	if !validPeriod(period) {
		return ErrUnknownPeriod
	}
	updates := map[string]any{
		"last_alert_threshold": 0,
		"last_alert_at":        nil,
		"updated_at":           time.Now().UTC(),
	}
	if errUpdate := m.db.WithContext(ctx).Model(&models.BudgetConfig{}).Where("period = ?", period).Updates(updates).Error; errUpdate != nil {
		return fmt.Errorf("budget: reset alert state: %w", errUpdate)
	}
	return nil
}

// Exhausted reports whether any configured period's ceiling is spent.
// Routing is gated while this holds.
func (m *Manager) Exhausted(ctx context.Context, now time.Time) (bool, error) {
	periods := []string{
		models.BudgetPeriodDaily,
		models.BudgetPeriodWeekly,
		models.BudgetPeriodMonthly,
	}
	for _, period := range periods {
		status, err := m.Status(ctx, period, now)
		if err != nil {
			return false, err
		}
		if status.Exhausted {
			return true, nil
		}
	}
	return false, nil
}

const alertInterval = 5 * time.Minute

// StartAlertLoop evaluates thresholds in the background. Alert state is
// reset automatically when a period rolls over.
func (m *Manager) StartAlertLoop(ctx context.Context) {
	if m == nil {
		return
	}
	go func() {
		periods := []string{
			models.BudgetPeriodDaily,
			models.BudgetPeriodWeekly,
			models.BudgetPeriodMonthly,
		}
		lastStart := make(map[string]time.Time, len(periods))

		ticker := time.NewTicker(alertInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				for _, period := range periods {
					start := usage.PeriodStart(period, now)
					if previous, ok := lastStart[period]; ok && !previous.Equal(start) {
						if errReset := m.Reset(ctx, period); errReset != nil {
							log.WithError(errReset).Warn("budget alert reset failed")
						}
					}
					lastStart[period] = start
				}
				if _, errCheck := m.CheckAlerts(ctx, now); errCheck != nil {
					log.WithError(errCheck).Warn("budget alert check failed")
				}
			}
		}
	}()
	log.Infof("budget alert loop started (interval=%s)", alertInterval)
}

// SmartOrder re-orders candidates by live cost, cheapest first, using a fixed
// 1:2 input:output weighting. For vision features, vision-incapable
// candidates are excluded before cost sorting.
func SmartOrder(candidates []resolver.Candidate, needsVision bool) []resolver.Candidate {
	filtered := make([]resolver.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if needsVision && !candidate.Model.SupportsVision {
			continue
		}
		filtered = append(filtered, candidate)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		scoreI := pricing.RouteScore(pricing.ProviderRates(filtered[i].Provider.Type))
		scoreJ := pricing.RouteScore(pricing.ProviderRates(filtered[j].Provider.Type))
		return scoreI < scoreJ
	})
	return filtered
}
