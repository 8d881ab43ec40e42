package budget

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/usage"
)

func openBudgetDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Usage{}, &models.UsageMonthly{}, &models.BudgetConfig{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	db := openBudgetDB(t)
	return NewManager(db, usage.NewTracker(db)), db
}

func seedSpend(t *testing.T, db *gorm.DB, at time.Time, cost float64) {
	t.Helper()
	row := models.Usage{
		ProviderID:  1,
		Provider:    "openai",
		ModelID:     "gpt-4o",
		FeatureType: "chat",
		Success:     true,
		Cost:        cost,
		RequestedAt: at,
	}
	if errCreate := db.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}
}

func TestUpsertRejectsUnknownPeriod(t *testing.T) {
	manager, _ := newTestManager(t)
	if _, errUpsert := manager.Upsert(context.Background(), "hourly", 10, true, true); errUpsert != ErrUnknownPeriod {
		t.Fatalf("expected ErrUnknownPeriod, got %v", errUpsert)
	}
}

func TestGetUnconfiguredPeriodReturnsDefaults(t *testing.T) {
	manager, _ := newTestManager(t)
	cfg, errGet := manager.Get(context.Background(), models.BudgetPeriodDaily)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if cfg.Limit != 0 || !cfg.AlertAt80 || !cfg.AlertAt100 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestUpsertPersistsDisabledAlerts(t *testing.T) {
	manager, db := newTestManager(t)
	if _, errUpsert := manager.Upsert(context.Background(), models.BudgetPeriodDaily, 50, false, false); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}

	var row models.BudgetConfig
	if errFind := db.Where("period = ?", models.BudgetPeriodDaily).Take(&row).Error; errFind != nil {
		t.Fatalf("reload config: %v", errFind)
	}
	if row.AlertAt80 || row.AlertAt100 {
		t.Fatalf("alert toggles persisted as %+v, want both off", row)
	}
}

func TestStatusComputesPercentAndExhaustion(t *testing.T) {
	manager, db := newTestManager(t)
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	if _, errUpsert := manager.Upsert(context.Background(), models.BudgetPeriodDaily, 10, true, true); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	seedSpend(t, db, now.Add(-time.Hour), 8.0)

	status, errStatus := manager.Status(context.Background(), models.BudgetPeriodDaily, now)
	if errStatus != nil {
		t.Fatalf("status: %v", errStatus)
	}
	if math.Abs(status.Percent-80) > 1e-9 {
		t.Fatalf("percent = %v, want 80", status.Percent)
	}
	if status.Exhausted {
		t.Fatal("80% spend is not exhaustion")
	}

	seedSpend(t, db, now.Add(-30*time.Minute), 2.0)
	status, errStatus = manager.Status(context.Background(), models.BudgetPeriodDaily, now)
	if errStatus != nil {
		t.Fatalf("status: %v", errStatus)
	}
	if !status.Exhausted {
		t.Fatal("spend at the ceiling must be exhausted")
	}
}

func TestStatusZeroLimitNeverExhausts(t *testing.T) {
	manager, db := newTestManager(t)
	now := time.Now()
	seedSpend(t, db, now.Add(-time.Minute), 1000.0)

	status, errStatus := manager.Status(context.Background(), models.BudgetPeriodDaily, now)
	if errStatus != nil {
		t.Fatalf("status: %v", errStatus)
	}
	if status.Exhausted || status.Percent != 0 {
		t.Fatalf("unlimited budget reported %+v", status)
	}
}

func TestCheckAlertsIsMonotonic(t *testing.T) {
	manager, db := newTestManager(t)
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	if _, errUpsert := manager.Upsert(context.Background(), models.BudgetPeriodDaily, 10, true, true); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	seedSpend(t, db, now.Add(-2*time.Hour), 8.5)

	fired, errCheck := manager.CheckAlerts(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if len(fired) != 1 || fired[0].Threshold != Threshold80 {
		t.Fatalf("expected one 80%% alert, got %+v", fired)
	}

	// Same threshold does not re-fire.
	fired, errCheck = manager.CheckAlerts(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if len(fired) != 0 {
		t.Fatalf("80%% alert re-fired: %+v", fired)
	}

	// Crossing 100% fires once more.
	seedSpend(t, db, now.Add(-time.Hour), 2.0)
	fired, errCheck = manager.CheckAlerts(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if len(fired) != 1 || fired[0].Threshold != Threshold100 {
		t.Fatalf("expected one 100%% alert, got %+v", fired)
	}

	fired, errCheck = manager.CheckAlerts(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if len(fired) != 0 {
		t.Fatalf("100%% alert re-fired: %+v", fired)
	}
}

func TestResetClearsAlertState(t *testing.T) {
	manager, db := newTestManager(t)
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	if _, errUpsert := manager.Upsert(context.Background(), models.BudgetPeriodDaily, 10, true, true); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	seedSpend(t, db, now.Add(-time.Hour), 9.0)

	if _, errCheck := manager.CheckAlerts(context.Background(), now); errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if errReset := manager.Reset(context.Background(), models.BudgetPeriodDaily); errReset != nil {
		t.Fatalf("reset: %v", errReset)
	}

	fired, errCheck := manager.CheckAlerts(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if len(fired) != 1 || fired[0].Threshold != Threshold80 {
		t.Fatalf("expected alert to re-fire after reset, got %+v", fired)
	}
}

func TestAlertTogglesRespected(t *testing.T) {
	manager, db := newTestManager(t)
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	if _, errUpsert := manager.Upsert(context.Background(), models.BudgetPeriodDaily, 10, false, true); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	seedSpend(t, db, now.Add(-time.Hour), 8.5)

	fired, errCheck := manager.CheckAlerts(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("check: %v", errCheck)
	}
	if len(fired) != 0 {
		t.Fatalf("disabled 80%% alert fired: %+v", fired)
	}
}

func TestExhaustedAcrossPeriods(t *testing.T) {
	manager, db := newTestManager(t)
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	exhausted, errCheck := manager.Exhausted(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("exhausted: %v", errCheck)
	}
	if exhausted {
		t.Fatal("no budgets configured, nothing can be exhausted")
	}

	// A monthly ceiling blown by spend earlier this month gates routing even
	// though today's daily spend is zero.
	if _, errUpsert := manager.Upsert(context.Background(), models.BudgetPeriodMonthly, 5, true, true); errUpsert != nil {
		t.Fatalf("upsert: %v", errUpsert)
	}
	seedSpend(t, db, now.AddDate(0, 0, -10), 6.0)

	exhausted, errCheck = manager.Exhausted(context.Background(), now)
	if errCheck != nil {
		t.Fatalf("exhausted: %v", errCheck)
	}
	if !exhausted {
		t.Fatal("monthly budget overspend must gate routing")
	}
}

func TestSmartOrderSortsByCost(t *testing.T) {
	candidates := []resolver.Candidate{
		{Provider: models.Provider{Type: "anthropic"}, Model: models.Model{ModelID: "claude-sonnet"}},
		{Provider: models.Provider{Type: "ollama"}, Model: models.Model{ModelID: "llama3"}},
		{Provider: models.Provider{Type: "deepseek"}, Model: models.Model{ModelID: "deepseek-chat"}},
	}

	ordered := SmartOrder(candidates, false)
	if len(ordered) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(ordered))
	}
	if ordered[0].Provider.Type != "ollama" || ordered[1].Provider.Type != "deepseek" || ordered[2].Provider.Type != "anthropic" {
		t.Fatalf("unexpected cost order: %s, %s, %s",
			ordered[0].Provider.Type, ordered[1].Provider.Type, ordered[2].Provider.Type)
	}
}

func TestSmartOrderVisionFilter(t *testing.T) {
	candidates := []resolver.Candidate{
		{Provider: models.Provider{Type: "deepseek"}, Model: models.Model{ModelID: "deepseek-chat"}},
		{Provider: models.Provider{Type: "anthropic"}, Model: models.Model{ModelID: "claude-sonnet", SupportsVision: true}},
	}

	ordered := SmartOrder(candidates, true)
	if len(ordered) != 1 || ordered[0].Provider.Type != "anthropic" {
		t.Fatalf("vision filter kept wrong candidates: %+v", ordered)
	}
}
