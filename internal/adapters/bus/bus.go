// Package bus is an in-process message bus modelled on cross-window postMessage:
// endpoints post to each other by id, delivery is asynchronous and unconfirmed, and
// every listener of an endpoint sees everything addressed to it.
package bus

import (
	"sync"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultInboxSize = 256

type Bus struct {
	mu        sync.RWMutex
	endpoints map[core.EndpointID]*Endpoint
	inboxSize int
}

type Option func(b *Bus)

// WithInboxSize bounds the per-endpoint queue. Posts to a full inbox are dropped.
func WithInboxSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.inboxSize = n
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		endpoints: make(map[core.EndpointID]*Endpoint),
		inboxSize: defaultInboxSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open creates an endpoint with a fresh id and starts its delivery loop.
func (b *Bus) Open(origin string) *Endpoint {
	e := &Endpoint{
		id:        core.EndpointID(uuid.NewString()),
		origin:    origin,
		bus:       b,
		inbox:     make(chan core.Inbound, b.inboxSize),
		done:      make(chan struct{}),
		listeners: make(map[uint64]func(core.Inbound)),
	}
	b.mu.Lock()
	b.endpoints[e.id] = e
	b.mu.Unlock()

	go e.deliver()
	log.Debug().Str("module", "adapters.bus").Str("endpoint", string(e.id)).Str("origin", origin).Msg("endpoint opened")
	return e
}

func (b *Bus) lookup(id core.EndpointID) (*Endpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.endpoints[id]
	return e, ok
}

func (b *Bus) remove(id core.EndpointID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.endpoints, id)
}

// Endpoint is one participant on the bus.
type Endpoint struct {
	id     core.EndpointID
	origin string
	bus    *Bus
	inbox  chan core.Inbound

	mu        sync.RWMutex
	listeners map[uint64]func(core.Inbound)
	nextID    uint64
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func (e *Endpoint) ID() core.EndpointID { return e.id }
func (e *Endpoint) Origin() string      { return e.origin }

// PostTo queues data for target. It never reports failure: unknown or closed
// targets and full inboxes drop the message.
func (e *Endpoint) PostTo(target core.EndpointID, data core.Frame) {
	t, ok := e.bus.lookup(target)
	if !ok {
		log.Debug().Str("module", "adapters.bus").Str("target", string(target)).Msg("post to gone endpoint dropped")
		return
	}
	msg := core.Inbound{Source: e.id, Origin: e.origin, Data: append(core.Frame(nil), data...)}
	t.enqueue(msg)
}

func (e *Endpoint) enqueue(msg core.Inbound) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.inbox <- msg:
	default:
		log.Warn().Str("module", "adapters.bus").Str("endpoint", string(e.id)).Msg("inbox full, message dropped")
	}
}

// Listen adds a listener. The returned subscription removes it.
func (e *Endpoint) Listen(fn func(core.Inbound)) core.Subscription {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()

	return core.NewSubscription(func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	})
}

// ListenerCount reports how many listeners are attached.
func (e *Endpoint) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// Close detaches the endpoint from the bus. Pending messages are discarded.
func (e *Endpoint) Close() {
	e.closeOnce.Do(func() {
		e.bus.remove(e.id)
		e.mu.Lock()
		e.closed = true
		e.listeners = make(map[uint64]func(core.Inbound))
		e.mu.Unlock()
		close(e.done)
		log.Debug().Str("module", "adapters.bus").Str("endpoint", string(e.id)).Msg("endpoint closed")
	})
}

func (e *Endpoint) deliver() {
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.inbox:
			for _, fn := range e.snapshot() {
				fn(msg)
			}
		}
	}
}

func (e *Endpoint) snapshot() []func(core.Inbound) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]func(core.Inbound), 0, len(e.listeners))
	for _, fn := range e.listeners {
		out = append(out, fn)
	}
	return out
}
