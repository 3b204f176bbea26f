package app

import (
	"sync"
	"time"

	"github.com/dkeye/AppBridge/internal/core"
	"golang.org/x/time/rate"
)

// Admission gates handler invocations. A nil Admission admits everything.
type Admission interface {
	// Admit reserves a slot for peer. release must be called once the handler settles.
	Admit(peer core.EndpointID) (release func(), ok bool)
}

type LimitPolicyConfig struct {
	RPS         float64
	Burst       int
	MaxInFlight int
	IdleTTL     time.Duration
}

// LimitPolicy applies a token bucket and an in-flight cap per peer.
// Idle peers are evicted lazily.
type LimitPolicy struct {
	limit       rate.Limit
	burst       int
	maxInFlight int
	idleTTL     time.Duration

	mu     sync.Mutex
	byPeer map[core.EndpointID]*peerBudget
	hits   uint64
}

type peerBudget struct {
	limiter  *rate.Limiter
	inFlight int
	lastSeen time.Time
}

// NewLimitPolicy returns nil when neither limit is configured.
func NewLimitPolicy(cfg LimitPolicyConfig) *LimitPolicy {
	if cfg.RPS <= 0 && cfg.MaxInFlight <= 0 {
		return nil
	}
	p := &LimitPolicy{
		limit:       rate.Inf,
		maxInFlight: cfg.MaxInFlight,
		idleTTL:     cfg.IdleTTL,
		byPeer:      make(map[core.EndpointID]*peerBudget),
	}
	if cfg.RPS > 0 {
		p.limit = rate.Limit(cfg.RPS)
		p.burst = cfg.Burst
		if p.burst <= 0 {
			p.burst = 1
		}
	}
	if p.idleTTL <= 0 {
		p.idleTTL = 10 * time.Minute
	}
	return p
}

func (p *LimitPolicy) Admit(peer core.EndpointID) (func(), bool) {
	if p == nil {
		return func() {}, true
	}
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.byPeer[peer]
	if !ok {
		b = &peerBudget{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.byPeer[peer] = b
	}
	b.lastSeen = now
	p.evictIdle(now)

	if p.maxInFlight > 0 && b.inFlight >= p.maxInFlight {
		return nil, false
	}
	if !b.limiter.AllowN(now, 1) {
		return nil, false
	}
	b.inFlight++

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if b.inFlight > 0 {
				b.inFlight--
			}
		})
	}, true
}

func (p *LimitPolicy) evictIdle(now time.Time) {
	p.hits++
	if p.hits%512 != 0 {
		return
	}
	cutoff := now.Add(-p.idleTTL)
	for k, v := range p.byPeer {
		if v.inFlight == 0 && v.lastSeen.Before(cutoff) {
			delete(p.byPeer, k)
		}
	}
}
