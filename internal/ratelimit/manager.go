package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// breakerWindow is how long the Manager stops probing Redis after a
// backend error before retrying it.
const breakerWindow = 30 * time.Second

// redisPingTimeout bounds connection probes so a dead backend cannot
// stall request handling.
const redisPingTimeout = 2 * time.Second

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// backendSettings is the subset of settings whose change forces a Redis
// reconnect.
type backendSettings struct {
	addr     string
	password string
	prefix   string
	db       int
}

func backendSettingsFrom(cfg SettingsConfig) backendSettings {
	next := backendSettings{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: strings.TrimSpace(cfg.RedisPassword),
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
		db:       cfg.RedisDB,
	}
	if next.db < 0 {
		next.db = 0
	}
	return next
}

// Manager routes limit checks to Redis when configured and healthy, and
// to the in-process limiter otherwise.
type Manager struct {
	provider SettingsProvider
	nowFn    func() time.Time
	dial     RedisClientFactory
	local    Limiter

	mu       sync.Mutex
	shared   *RedisLimiter
	settings backendSettings
	retryAt  time.Time
}

// NewManager constructs a Manager. Nil arguments fall back to a
// memory-only snapshot, the wall clock, and the real Redis client.
func NewManager(provider SettingsProvider, nowFn func() time.Time, dial RedisClientFactory) *Manager {
	if provider == nil {
		provider = func() SettingsConfig { return SettingsConfig{RedisPrefix: DefaultRedisPrefix} }
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if dial == nil {
		dial = redis.NewClient
	}
	return &Manager{
		provider: provider,
		nowFn:    nowFn,
		dial:     dial,
		local:    NewMemoryLimiter(),
	}
}

// Allow checks whether the request identified by key fits within limit
// for the current second.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()
	cfg := m.provider()

	if cfg.RedisEnabled {
		if result, ok := m.allowShared(ctx, key, limit, now, cfg); ok {
			return result, nil
		}
	}
	return m.local.Allow(ctx, key, limit, now)
}

func (m *Manager) allowShared(ctx context.Context, key string, limit int, now time.Time, cfg SettingsConfig) (Result, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	limiter, errConnect := m.sharedLimiter(ctx, cfg, now)
	if errConnect != nil {
		if !errors.Is(errConnect, errBreakerOpen) {
			m.tripBreaker(errConnect, now)
		}
		return Result{}, false
	}
	result, errAllow := limiter.Allow(ctx, key, limit, now)
	if errAllow != nil {
		m.tripBreaker(errAllow, now)
		return Result{}, false
	}
	return result, true
}

// errBreakerOpen marks checks skipped while the backoff window is open.
var errBreakerOpen = errors.New("ratelimit: redis breaker open")

func (m *Manager) tripBreaker(err error, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.retryAt) {
		return
	}
	m.retryAt = now.Add(breakerWindow)
	log.WithError(err).Warn("rate limit: redis unavailable, serving from memory")
}

// sharedLimiter returns the cached Redis limiter, reconnecting when the
// backend settings changed since the last check.
func (m *Manager) sharedLimiter(ctx context.Context, cfg SettingsConfig, now time.Time) (*RedisLimiter, error) {
	next := backendSettingsFrom(cfg)
	if next.addr == "" {
		return nil, errors.New("ratelimit: redis address not configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Before(m.retryAt) {
		return nil, errBreakerOpen
	}
	if m.shared != nil && m.settings == next {
		return m.shared, nil
	}
	if m.shared != nil {
		_ = m.shared.client.Close()
		m.shared = nil
	}

	client := m.dial(&redis.Options{
		Addr:     next.addr,
		Password: next.password,
		DB:       next.db,
	})
	ctxPing, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	m.shared = NewRedisLimiter(client, next.prefix)
	m.settings = next
	return m.shared, nil
}
