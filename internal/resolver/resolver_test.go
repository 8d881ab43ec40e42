package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

func openResolverDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Provider{}, &models.Model{}, &models.FeatureMapping{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func seedProvider(t *testing.T, db *gorm.DB, name, providerType, costTier string, enabled bool) *models.Provider {
	t.Helper()
	provider := models.Provider{
		Name:      name,
		Type:      providerType,
		CostTier:  costTier,
		IsEnabled: enabled,
	}
	if errCreate := db.Create(&provider).Error; errCreate != nil {
		t.Fatalf("seed provider: %v", errCreate)
	}
	return &provider
}

func seedModel(t *testing.T, db *gorm.DB, providerID uint64, modelID string, contextWindow int, vision bool) *models.Model {
	t.Helper()
	model := models.Model{
		ProviderID:     providerID,
		ModelID:        modelID,
		SupportsVision: vision,
	}
	if contextWindow > 0 {
		model.ContextWindow = &contextWindow
	}
	if errCreate := db.Create(&model).Error; errCreate != nil {
		t.Fatalf("seed model: %v", errCreate)
	}
	return &model
}

func seedRule(t *testing.T, db *gorm.DB, feature string, priority int, fallbackMode string, required []string, modelRefID *uint64) {
	t.Helper()
	rule := models.FeatureMapping{
		FeatureType:  feature,
		MatchMode:    models.MatchModeAutoTag,
		Priority:     priority,
		FallbackMode: fallbackMode,
		RequiredTags: datatypes.JSON([]byte("[]")),
		ExcludedTags: datatypes.JSON([]byte("[]")),
	}
	if modelRefID != nil {
		rule.MatchMode = models.MatchModeSpecificModel
		rule.ModelRefID = modelRefID
	}
	if len(required) > 0 {
		tags := "["
		for i, tag := range required {
			if i > 0 {
				tags += ","
			}
			tags += fmt.Sprintf("%q", tag)
		}
		tags += "]"
		rule.RequiredTags = datatypes.JSON([]byte(tags))
	}
	if errCreate := db.Create(&rule).Error; errCreate != nil {
		t.Fatalf("seed rule: %v", errCreate)
	}
}

func TestResolvePriorityOrder(t *testing.T) {
	db := openResolverDB(t)
	premium := seedProvider(t, db, "Premium", "anthropic", "high", true)
	budgetProv := seedProvider(t, db, "Budget", "deepseek", "low", true)
	seedModel(t, db, premium.ID, "claude-sonnet", 200000, false)
	seedModel(t, db, budgetProv.ID, "deepseek-chat", 64000, false)

	seedRule(t, db, "chat", 10, models.FallbackNextPriority, []string{"expensive"}, nil)
	seedRule(t, db, "chat", 5, models.FallbackNextPriority, []string{"cheap"}, nil)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(list))
	}
	if list[0].Provider.Name != "Premium" || list[1].Provider.Name != "Budget" {
		t.Fatalf("expected priority ordering Premium, Budget; got %s, %s", list[0].Provider.Name, list[1].Provider.Name)
	}
}

func TestResolveFailModeHaltsEvaluation(t *testing.T) {
	db := openResolverDB(t)
	provider := seedProvider(t, db, "Only", "openai", "medium", true)
	seedModel(t, db, provider.ID, "gpt-4o-mini", 128000, false)

	// The high-priority rule requires a tag nothing satisfies and is marked
	// fail; the lower rule would match everything but must never run.
	seedRule(t, db, "chat", 10, models.FallbackFail, []string{"vision"}, nil)
	seedRule(t, db, "chat", 5, models.FallbackNextPriority, nil, nil)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 0 {
		t.Fatalf("fail mode must halt with zero candidates, got %d", len(list))
	}
}

func TestResolveDeduplicatesFirstSeen(t *testing.T) {
	db := openResolverDB(t)
	provider := seedProvider(t, db, "Dup", "openai", "medium", true)
	seedModel(t, db, provider.ID, "gpt-4o", 128000, true)

	// Both rules match the same (provider, model); the higher-priority
	// occurrence must win.
	seedRule(t, db, "chat", 10, models.FallbackNextPriority, nil, nil)
	seedRule(t, db, "chat", 5, models.FallbackNextPriority, nil, nil)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 1 {
		t.Fatalf("expected deduplicated list of 1, got %d", len(list))
	}
	if list[0].Priority != 10 {
		t.Fatalf("expected first-seen (priority 10) occurrence kept, got %d", list[0].Priority)
	}
}

func TestResolveFreeModelsOrderedLast(t *testing.T) {
	db := openResolverDB(t)
	provider := seedProvider(t, db, "Router", "openrouter", "low", true)
	seedModel(t, db, provider.ID, "llama-3.3-70b:free", 131072, false)
	seedModel(t, db, provider.ID, "mistral-large", 32000, false)
	seedModel(t, db, provider.ID, "qwen-2.5", 64000, false)

	seedRule(t, db, "chat", 0, models.FallbackNextPriority, nil, nil)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(list))
	}
	// Paid models by context window desc, free-marked model last.
	if list[0].Model.ModelID != "qwen-2.5" || list[1].Model.ModelID != "mistral-large" {
		t.Fatalf("unexpected paid ordering: %s, %s", list[0].Model.ModelID, list[1].Model.ModelID)
	}
	if list[2].Model.ModelID != "llama-3.3-70b:free" {
		t.Fatalf("free-marked model must sort last, got %s", list[2].Model.ModelID)
	}
}

func TestResolveSpecificModelPin(t *testing.T) {
	db := openResolverDB(t)
	provider := seedProvider(t, db, "Pinned", "anthropic", "high", true)
	model := seedModel(t, db, provider.ID, "claude-opus", 200000, true)

	seedRule(t, db, "analysis", 0, models.FallbackFail, nil, &model.ID)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "analysis", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 1 || list[0].Model.ModelID != "claude-opus" {
		t.Fatalf("expected pinned model, got %+v", list)
	}
}

func TestResolveSkipsDisabledProviders(t *testing.T) {
	db := openResolverDB(t)
	disabled := seedProvider(t, db, "Disabled", "openai", "medium", false)
	seedModel(t, db, disabled.ID, "gpt-4o", 128000, false)

	seedRule(t, db, "chat", 0, models.FallbackNextPriority, nil, nil)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 0 {
		t.Fatalf("disabled providers must not produce candidates, got %d", len(list))
	}
}

func TestResolveRequirementsFilter(t *testing.T) {
	db := openResolverDB(t)
	provider := seedProvider(t, db, "Mixed", "google", "low", true)
	seedModel(t, db, provider.ID, "gemini-flash", 1000000, true)
	seedModel(t, db, provider.ID, "gemini-nano", 32000, false)

	seedRule(t, db, "vision", 0, models.FallbackNextPriority, nil, nil)

	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "vision", &Requirements{NeedsVision: true, MinContextWindow: 100000})
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 1 || list[0].Model.ModelID != "gemini-flash" {
		t.Fatalf("expected only the vision model with enough context, got %+v", list)
	}
}

func TestResolveUnknownFeatureIsEmpty(t *testing.T) {
	db := openResolverDB(t)
	resolver := New(db)
	list, errResolve := resolver.ResolveWithFallback(context.Background(), "never-configured", nil)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if len(list) != 0 {
		t.Fatalf("unknown feature must resolve to empty list, got %d", len(list))
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	db := openResolverDB(t)
	provider := seedProvider(t, db, "Stable", "openai", "medium", true)
	seedModel(t, db, provider.ID, "gpt-4o", 128000, false)
	seedModel(t, db, provider.ID, "gpt-4o-mini", 128000, false)
	seedRule(t, db, "chat", 0, models.FallbackNextPriority, nil, nil)

	resolver := New(db)
	first, errFirst := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errFirst != nil {
		t.Fatalf("resolve: %v", errFirst)
	}
	second, errSecond := resolver.ResolveWithFallback(context.Background(), "chat", nil)
	if errSecond != nil {
		t.Fatalf("resolve: %v", errSecond)
	}
	if len(first) != len(second) {
		t.Fatalf("resolution changed size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Model.ID != second[i].Model.ID {
			t.Fatalf("resolution order changed at %d", i)
		}
	}
}
