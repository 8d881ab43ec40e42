package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memorySweepThreshold bounds how many keys accumulate before stale
// windows are swept out of the map.
const memorySweepThreshold = 4096

type window struct {
	startSec int64
	used     int
}

// MemoryLimiter counts requests per key in one-second fixed windows. It
// is the fallback backend when Redis is not configured or unreachable,
// so limits hold per process rather than per deployment.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter constructs an empty MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*window)}
}

// Allow consumes one slot for key in the window containing now.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	win, ok := l.windows[key]
	if !ok {
		if len(l.windows) >= memorySweepThreshold {
			l.sweep(sec)
		}
		win = &window{startSec: sec}
		l.windows[key] = win
	} else if win.startSec != sec {
		win.startSec = sec
		win.used = 0
	}

	if win.used >= limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	win.used++
	return Result{Allowed: true, Remaining: limit - win.used, Reset: reset}, nil
}

// sweep drops windows that ended before the current second. Caller
// holds mu.
func (l *MemoryLimiter) sweep(sec int64) {
	for key, win := range l.windows {
		if win.startSec < sec {
			delete(l.windows, key)
		}
	}
}
