package orch

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Pending is a request waiting for an operator decision.
type Pending struct {
	ID        string           `json:"id"`
	Peer      core.EndpointID  `json:"peer"`
	RequestID domain.RequestID `json:"requestId"`
	Method    domain.Method    `json:"method"`
	Params    json.RawMessage  `json:"params"`
	CreatedAt time.Time        `json:"createdAt"`

	settled atomic.Bool
}

// Approvals is a bounded queue of parked requests. Entries that expire or are
// pushed out by newer ones are reported through onExpire.
type Approvals struct {
	lru      *expirable.LRU[string, *Pending]
	onExpire func(*Pending)
}

func NewApprovals(size int, ttl time.Duration) *Approvals {
	a := &Approvals{}
	a.lru = expirable.NewLRU[string, *Pending](size, a.evicted, ttl)
	return a
}

func (a *Approvals) evicted(_ string, p *Pending) {
	if !p.settled.CompareAndSwap(false, true) {
		return
	}
	if a.onExpire != nil {
		a.onExpire(p)
	}
}

// Park stores p under a fresh id and returns it.
func (a *Approvals) Park(p *Pending) string {
	p.ID = uuid.NewString()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	a.lru.Add(p.ID, p)
	return p.ID
}

// Take removes and returns the entry with id.
func (a *Approvals) Take(id string) (*Pending, bool) {
	p, ok := a.lru.Peek(id)
	if !ok {
		return nil, false
	}
	if !p.settled.CompareAndSwap(false, true) {
		return nil, false
	}
	a.lru.Remove(id)
	return p, true
}

func (a *Approvals) Get(id string) (*Pending, bool) {
	return a.lru.Peek(id)
}

// List returns the parked entries, oldest first.
func (a *Approvals) List() []*Pending {
	return a.lru.Values()
}

func (a *Approvals) Len() int { return a.lru.Len() }

// DropPeer forgets every entry of peer without reporting them.
func (a *Approvals) DropPeer(peer core.EndpointID) {
	for _, p := range a.lru.Values() {
		if p.Peer != peer {
			continue
		}
		if p.settled.CompareAndSwap(false, true) {
			a.lru.Remove(p.ID)
		}
	}
}
