package ratelimit

import (
	"strings"

	"github.com/lumenlabs/llm-gateway/internal/config"
)

// DefaultRedisPrefix namespaces limiter keys in shared Redis deployments.
const DefaultRedisPrefix = "llmgw:rl"

// SettingsConfig captures the rate limit settings snapshot the Manager
// consults on every check.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig builds a settings provider over the loaded gateway
// config. Redis is enabled whenever an address is configured.
func SettingsFromConfig(cfg *config.Config) SettingsProvider {
	snapshot := SettingsConfig{RedisPrefix: DefaultRedisPrefix}
	if cfg != nil {
		snapshot.Limit = cfg.RateLimit
		snapshot.RedisAddr = strings.TrimSpace(cfg.Redis.Addr)
		snapshot.RedisPassword = strings.TrimSpace(cfg.Redis.Password)
		snapshot.RedisDB = cfg.Redis.DB
		if prefix := strings.TrimSpace(cfg.Redis.Prefix); prefix != "" {
			snapshot.RedisPrefix = prefix
		}
		snapshot.RedisEnabled = snapshot.RedisAddr != ""
	}
	if snapshot.Limit < 0 {
		snapshot.Limit = 0
	}
	if snapshot.RedisDB < 0 {
		snapshot.RedisDB = 0
	}
	return func() SettingsConfig { return snapshot }
}
