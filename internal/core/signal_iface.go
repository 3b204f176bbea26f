package core

import "sync"

// Frame is a raw message body.
type Frame []byte

// EndpointID identifies the sender of an inbound message.
type EndpointID string

// Inbound is a message as delivered by a transport, stamped with its origin.
type Inbound struct {
	Source EndpointID
	Origin string
	Data   Frame
}

// Transport abstracts the message channel to the embedded app.
// Owned by the adapter; it knows nothing about the protocol.
type Transport interface {
	// Post is fire-and-forget. Frames to a gone peer are dropped silently.
	Post(Frame)
	// Subscribe installs the single delivery callback and returns its handle.
	// A later Subscribe replaces the previous callback.
	Subscribe(func(Inbound)) Subscription
}

// Subscription is an owned handle on a transport delivery callback.
type Subscription interface {
	// Unsubscribe removes the callback. Safe to call more than once.
	Unsubscribe()
}

// NewSubscription wraps fn so that it runs at most once.
func NewSubscription(fn func()) Subscription {
	return &onceSubscription{fn: fn}
}

type onceSubscription struct {
	once sync.Once
	fn   func()
}

func (s *onceSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
	})
}
