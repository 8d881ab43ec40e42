package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the gateway.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvMasterKey    = "GATEWAY_MASTER_KEY"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
)

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingMasterKey indicates no credential encryption key is configured.
var ErrMissingMasterKey = errors.New("missing master key (set `master-key` in config file or GATEWAY_MASTER_KEY)")

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 24 * time.Hour

// JWTConfig holds admin JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RedisConfig holds optional Redis rate-limit backend settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Config holds the resolved gateway configuration.
type Config struct {
	ConfigPath string `yaml:"-"`

	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Port int `yaml:"port"`

	MasterKey string `yaml:"master-key"`

	JWT JWTConfig `yaml:"jwt"`

	Redis RedisConfig `yaml:"redis"`

	// RateLimit is the default requests-per-second cap for caller keys
	// without a per-key limit. Zero disables the default cap.
	RateLimit int `yaml:"rate-limit"`

	// PriceSync toggles the models.dev price reference syncer.
	PriceSync bool `yaml:"price-sync"`

	// UsageRetentionDays controls how long raw usage rows outlive their
	// monthly rollup. Zero keeps raw rows forever.
	UsageRetentionDays int `yaml:"usage-retention-days"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file and applies environment overrides.
// A missing file is tolerated when the environment supplies the DSN.
func Load(path string) (*Config, error) {
	resolved := ResolveConfigPath(path)
	cfg := &Config{ConfigPath: resolved, PriceSync: true}

	data, errRead := os.ReadFile(resolved)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return nil, fmt.Errorf("read config file: %w", errRead)
	}

	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if key := strings.TrimSpace(os.Getenv(EnvMasterKey)); key != "" {
		cfg.MasterKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}

	return cfg, nil
}

// DSN returns the resolved database DSN.
func (c *Config) DSN() (string, error) {
	if dsn := strings.TrimSpace(c.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(c.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// ResolveMasterKey returns the credential encryption key.
func (c *Config) ResolveMasterKey() (string, error) {
	if key := strings.TrimSpace(c.MasterKey); key != "" {
		return key, nil
	}
	return "", ErrMissingMasterKey
}
