package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrNilHandler    = errors.New("nil handler")
)

// Registry maps a method to at most one handler. The last registration wins.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Method]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.Method]Handler),
	}
}

func (r *Registry) Register(method domain.Method, h Handler) error {
	if !method.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, string(method))
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.handlers[method]
	r.handlers[method] = h
	log.Debug().Str("module", "app.registry").Str("method", method.String()).Bool("replaced", replaced).Msg("handler registered")
	return nil
}

func (r *Registry) Unregister(method domain.Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; !ok {
		return
	}
	delete(r.handlers, method)
	log.Debug().Str("module", "app.registry").Str("method", method.String()).Msg("handler unregistered")
}

func (r *Registry) Get(method domain.Method) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the currently bound methods in no particular order.
func (r *Registry) Methods() []domain.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Method, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	return out
}
