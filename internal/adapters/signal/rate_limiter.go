package signal

import (
	"sync"
	"time"
)

// ConnectLimiter caps connection attempts per client key in a sliding window.
type ConnectLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	calls    uint64
}

// NewConnectLimiter returns nil when limit is not positive; a nil limiter allows everything.
func NewConnectLimiter(limit int, interval time.Duration) *ConnectLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &ConnectLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *ConnectLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)
	rl.sweep(windowStart)

	attempts := rl.history[key]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}

	rl.history[key] = append(fresh, now)
	return true
}

// sweep drops keys with no attempt inside the window, every 256 calls.
func (rl *ConnectLimiter) sweep(windowStart time.Time) {
	rl.calls++
	if rl.calls%256 != 0 {
		return
	}
	for k, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, k)
		}
	}
}

func (rl *ConnectLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}
