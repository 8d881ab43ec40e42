package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if errWrite := os.WriteFile(path, []byte(content), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDBConnection, "")
	t.Setenv(EnvMasterKey, "")
	t.Setenv(EnvJWTSecret, "")
	t.Setenv(EnvJWTExpiry, "")
}

func TestLoadReadsYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database-dsn: "file:test.db"
port: 9000
master-key: "unit-test-key"
rate-limit: 20
price-sync: false
usage-retention-days: 90
jwt:
  secret: "jwt-secret"
  expiry: 2h
redis:
  addr: "localhost:6379"
  db: 3
`)
	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}

	dsn, errDSN := cfg.DSN()
	if errDSN != nil || dsn != "file:test.db" {
		t.Fatalf("dsn = %q, %v", dsn, errDSN)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if key, errKey := cfg.ResolveMasterKey(); errKey != nil || key != "unit-test-key" {
		t.Fatalf("master key = %q, %v", key, errKey)
	}
	if cfg.RateLimit != 20 {
		t.Fatalf("rate limit = %d", cfg.RateLimit)
	}
	if cfg.PriceSync {
		t.Fatal("price-sync: false not honored")
	}
	if cfg.UsageRetentionDays != 90 {
		t.Fatalf("retention = %d", cfg.UsageRetentionDays)
	}
	if cfg.JWT.Secret != "jwt-secret" || cfg.JWT.Expiry != 2*time.Hour {
		t.Fatalf("jwt = %+v", cfg.JWT)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 3 {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
}

func TestLoadMissingFileUsesEnvironment(t *testing.T) {
	t.Setenv(EnvDBConnection, "postgres://gateway:pw@localhost/gw")
	t.Setenv(EnvMasterKey, "env-master-key")

	cfg, errLoad := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	dsn, errDSN := cfg.DSN()
	if errDSN != nil || dsn != "postgres://gateway:pw@localhost/gw" {
		t.Fatalf("dsn = %q, %v", dsn, errDSN)
	}
	if key, errKey := cfg.ResolveMasterKey(); errKey != nil || key != "env-master-key" {
		t.Fatalf("master key = %q, %v", key, errKey)
	}
	if !cfg.PriceSync {
		t.Fatal("price sync must default on")
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database-dsn: "file:from-file.db"
master-key: "file-key"
`)
	t.Setenv(EnvDBConnection, "file:from-env.db")
	t.Setenv(EnvMasterKey, "env-key")
	t.Setenv(EnvJWTExpiry, "45m")

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	dsn, _ := cfg.DSN()
	if dsn != "file:from-env.db" {
		t.Fatalf("env must override file dsn, got %q", dsn)
	}
	key, _ := cfg.ResolveMasterKey()
	if key != "env-key" {
		t.Fatalf("env must override file master key, got %q", key)
	}
	if cfg.JWT.Expiry != 45*time.Minute {
		t.Fatalf("jwt expiry = %v", cfg.JWT.Expiry)
	}
}

func TestDSNNestedFallback(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  dsn: "file:nested.db"
`)
	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	dsn, errDSN := cfg.DSN()
	if errDSN != nil || dsn != "file:nested.db" {
		t.Fatalf("nested dsn = %q, %v", dsn, errDSN)
	}
}

func TestMissingRequiredValues(t *testing.T) {
	clearEnv(t)
	cfg, errLoad := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if _, errDSN := cfg.DSN(); errDSN != ErrMissingDatabaseDSN {
		t.Fatalf("expected ErrMissingDatabaseDSN, got %v", errDSN)
	}
	if _, errKey := cfg.ResolveMasterKey(); errKey != ErrMissingMasterKey {
		t.Fatalf("expected ErrMissingMasterKey, got %v", errKey)
	}
	if cfg.JWT.Expiry != 24*time.Hour {
		t.Fatalf("default jwt expiry = %v", cfg.JWT.Expiry)
	}
}
