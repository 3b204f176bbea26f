package bus

import (
	"sync"

	"github.com/dkeye/AppBridge/internal/core"
)

// Transport binds a local endpoint to one peer endpoint.
// It implements core.Transport.
type Transport struct {
	local *Endpoint
	peer  core.EndpointID

	mu  sync.Mutex
	sub core.Subscription
}

func NewTransport(local *Endpoint, peer core.EndpointID) *Transport {
	return &Transport{local: local, peer: peer}
}

func (t *Transport) Peer() core.EndpointID { return t.peer }

func (t *Transport) Post(f core.Frame) {
	t.local.PostTo(t.peer, f)
}

func (t *Transport) Subscribe(fn func(core.Inbound)) core.Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		t.sub.Unsubscribe()
	}
	inner := t.local.Listen(fn)
	t.sub = inner
	return core.NewSubscription(func() {
		inner.Unsubscribe()
		t.mu.Lock()
		if t.sub == inner {
			t.sub = nil
		}
		t.mu.Unlock()
	})
}
