package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		result, errAllow := limiter.Allow(context.Background(), "k:1", 3, now)
		if errAllow != nil {
			t.Fatalf("allow: %v", errAllow)
		}
		if !result.Allowed {
			t.Fatalf("request %d denied under limit", i+1)
		}
		if result.Remaining != 3-(i+1) {
			t.Fatalf("remaining = %d after request %d", result.Remaining, i+1)
		}
	}

	result, errAllow := limiter.Allow(context.Background(), "k:1", 3, now)
	if errAllow != nil {
		t.Fatalf("allow: %v", errAllow)
	}
	if result.Allowed {
		t.Fatal("fourth request in the window must be denied")
	}
	if !result.Reset.Equal(time.Unix(now.Unix()+1, 0).UTC()) {
		t.Fatalf("reset = %v, want next second", result.Reset)
	}

	// The next second opens a fresh window.
	later := now.Add(time.Second)
	result, errAllow = limiter.Allow(context.Background(), "k:1", 3, later)
	if errAllow != nil {
		t.Fatalf("allow: %v", errAllow)
	}
	if !result.Allowed {
		t.Fatal("new window must admit requests again")
	}
}

func TestMemoryLimiterIsolatesKeys(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Now()

	if result, _ := limiter.Allow(context.Background(), "k:1", 1, now); !result.Allowed {
		t.Fatal("first key denied")
	}
	if result, _ := limiter.Allow(context.Background(), "k:1", 1, now); result.Allowed {
		t.Fatal("first key over limit must be denied")
	}
	if result, _ := limiter.Allow(context.Background(), "k:2", 1, now); !result.Allowed {
		t.Fatal("second key must have its own window")
	}
}

func TestMemoryLimiterZeroLimitAllowsAll(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Now()
	for i := 0; i < 10; i++ {
		result, errAllow := limiter.Allow(context.Background(), "k:1", 0, now)
		if errAllow != nil || !result.Allowed {
			t.Fatalf("zero limit must never deny (i=%d, %v)", i, errAllow)
		}
	}
}

func TestKeyForDecision(t *testing.T) {
	if key := KeyForDecision(7, Decision{Limit: 5, Scope: ScopeAPIKey}); key != "k:7" {
		t.Fatalf("key = %q", key)
	}
	if key := KeyForDecision(7, Decision{}); key != "" {
		t.Fatalf("unlimited decision must yield no key, got %q", key)
	}
	if key := KeyForDecision(0, Decision{Limit: 5, Scope: ScopeAPIKey}); key != "" {
		t.Fatalf("anonymous caller must yield no key, got %q", key)
	}
}

func TestResolveLimitPrefersKeyOverDefault(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.APIKey{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	limited := models.APIKey{Name: "limited", KeyHash: "h1", Prefix: "llmgw-aaaaa", RateLimit: 25, IsEnabled: true}
	unlimited := models.APIKey{Name: "unlimited", KeyHash: "h2", Prefix: "llmgw-bbbbb", IsEnabled: true}
	if errCreate := db.Create(&limited).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}
	if errCreate := db.Create(&unlimited).Error; errCreate != nil {
		t.Fatalf("seed: %v", errCreate)
	}

	decision, errResolve := ResolveLimit(context.Background(), db, limited.ID, 10)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if decision.Limit != 25 || decision.Scope != ScopeAPIKey {
		t.Fatalf("per-key limit not preferred: %+v", decision)
	}

	decision, errResolve = ResolveLimit(context.Background(), db, unlimited.ID, 10)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if decision.Limit != 10 {
		t.Fatalf("default limit not applied: %+v", decision)
	}

	decision, errResolve = ResolveLimit(context.Background(), db, unlimited.ID, 0)
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if decision.Limit != 0 || decision.Scope != ScopeNone {
		t.Fatalf("no configured limit must yield zero decision: %+v", decision)
	}
}
