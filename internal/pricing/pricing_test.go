package pricing

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

func TestCost(t *testing.T) {
	rates := Rates{Input: 3.0, Output: 15.0}

	if got := Cost(1_000_000, 1_000_000, rates); got != 18.0 {
		t.Fatalf("Cost(1M, 1M) = %v, want 18.0", got)
	}
	if got := Cost(0, 0, rates); got != 0 {
		t.Fatalf("Cost(0, 0) = %v, want 0", got)
	}
	// 1000 in, 500 out: 0.003 + 0.0075 = 0.0105
	if got := Cost(1000, 500, rates); got != 0.0105 {
		t.Fatalf("Cost(1000, 500) = %v, want 0.0105", got)
	}
}

func TestCostRounding(t *testing.T) {
	// 1 input token at $3/1M is 0.000003; 7 tokens is 0.000021.
	got := Cost(7, 0, Rates{Input: 3.0})
	if got != 0.000021 {
		t.Fatalf("Cost(7, 0) = %v, want 0.000021", got)
	}
	// Sub-micro-dollar amounts round away.
	if got := Cost(1, 0, Rates{Input: 0.27}); got != 0 {
		t.Fatalf("Cost(1, 0) at $0.27/1M = %v, want 0", got)
	}
}

func TestRouteScoreOrdering(t *testing.T) {
	free := RouteScore(ProviderRates("ollama"))
	cheap := RouteScore(ProviderRates("deepseek"))
	premium := RouteScore(ProviderRates("anthropic"))

	if !(free < cheap && cheap < premium) {
		t.Fatalf("expected free < cheap < premium, got %v %v %v", free, cheap, premium)
	}
	if premium != 3.0+2*15.0 {
		t.Fatalf("RouteScore(anthropic) = %v, want 33.0", premium)
	}
}

func TestProviderRatesUnknownType(t *testing.T) {
	if got := ProviderRates("never-heard-of-it"); got != (Rates{}) {
		t.Fatalf("unknown provider should price at zero, got %+v", got)
	}
}

func TestLookupRatesPrefersSyncedRow(t *testing.T) {
	db, errOpen := gorm.Open(sqlite.Open("file:pricing_lookup?mode=memory&cache=shared"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.ModelPrice{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	input := 1.25
	row := models.ModelPrice{
		ProviderName: "anthropic",
		ModelName:    "claude-haiku",
		InputPrice:   &input,
	}
	if errCreate := db.Create(&row).Error; errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	got := LookupRates(context.Background(), db, "Anthropic", "claude-haiku")
	if got.Input != 1.25 {
		t.Fatalf("expected synced input price 1.25, got %v", got.Input)
	}
	// Output falls back to the static table when the row has no output price.
	if got.Output != 15.0 {
		t.Fatalf("expected static output price 15.0, got %v", got.Output)
	}

	// Unknown model falls back entirely.
	fallback := LookupRates(context.Background(), db, "anthropic", "not-synced")
	if fallback.Input != 3.0 || fallback.Output != 15.0 {
		t.Fatalf("expected static rates, got %+v", fallback)
	}
}
