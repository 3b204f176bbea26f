package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

const (
	fallbackErrorMessage = "handler failed"
	tooManyRequests      = "too many requests"
)

type Option func(c *Communicator)

// WithRegistry shares a registry between communicators.
func WithRegistry(r *Registry) Option {
	return func(c *Communicator) { c.registry = r }
}

// WithOrigins restricts accepted messages to the given origins.
func WithOrigins(origins ...string) Option {
	return func(c *Communicator) { c.origins = origins }
}

func WithAdmission(a Admission) Option {
	return func(c *Communicator) { c.admission = a }
}

// WithUnhandledReply makes requests for unbound methods fail loudly instead of
// being dropped.
func WithUnhandledReply(enabled bool) Option {
	return func(c *Communicator) { c.replyUnhandled = enabled }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Communicator) { c.metrics = m }
}

// WithQuietCalls suppresses debug logging of rpcCall requests for the given calls.
func WithQuietCalls(calls ...string) Option {
	return func(c *Communicator) {
		for _, call := range calls {
			c.quiet[call] = struct{}{}
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Communicator) { c.log = l }
}

// Communicator dispatches requests arriving on one transport from one peer and
// posts the correlated responses back. It is active from construction until Dispose.
type Communicator struct {
	transport core.Transport
	sub       core.Subscription
	validator *Validator
	registry  *Registry
	origins   []string
	admission Admission
	metrics   *Metrics
	quiet     map[string]struct{}
	log       zerolog.Logger
	ctx       context.Context

	replyUnhandled bool
	// postMu is held shared across the disposed check and transport.Post, and
	// exclusively while Dispose flips the flag.
	postMu   sync.RWMutex
	disposed atomic.Bool
	wg       conc.WaitGroup
}

// New binds a communicator to t and subscribes immediately. Handlers receive ctx;
// Dispose does not cancel it.
func New(ctx context.Context, t core.Transport, peer core.EndpointID, opts ...Option) *Communicator {
	c := &Communicator{
		transport: t,
		quiet:     make(map[string]struct{}),
		log:       log.With().Str("module", "app.communicator").Str("peer", string(peer)).Logger(),
		ctx:       ctx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	c.validator = NewValidator(peer, c.origins...)
	c.sub = t.Subscribe(c.handleIncoming)
	c.log.Debug().Msg("subscribed")
	return c
}

// On binds h to method, replacing any previous handler.
func (c *Communicator) On(method domain.Method, h Handler) error {
	return c.registry.Register(method, h)
}

// Off removes the handler for method.
func (c *Communicator) Off(method domain.Method) {
	c.registry.Unregister(method)
}

func (c *Communicator) Registry() *Registry { return c.registry }

func (c *Communicator) Peer() core.EndpointID { return c.validator.Peer() }

// Disposed reports whether Dispose has been called.
func (c *Communicator) Disposed() bool { return c.disposed.Load() }

// Dispose unsubscribes from the transport. Handlers already running keep running,
// but nothing they settle with is posted. Calling Dispose again is a no-op.
func (c *Communicator) Dispose() {
	c.postMu.Lock()
	swapped := c.disposed.CompareAndSwap(false, true)
	c.postMu.Unlock()
	if !swapped {
		return
	}
	c.sub.Unsubscribe()
	c.log.Debug().Msg("disposed")
}

// Wait blocks until every handler invocation started so far has settled.
func (c *Communicator) Wait() {
	c.wg.Wait()
}

// Send posts a success envelope for id. Deferred handlers use it to answer later.
func (c *Communicator) Send(id domain.RequestID, data any) error {
	resp, err := domain.NewSuccess(id, data, domain.ProtocolVersion)
	if err != nil {
		return err
	}
	c.post(resp)
	return nil
}

// SendError posts an error envelope for id.
func (c *Communicator) SendError(id domain.RequestID, message string) {
	c.post(domain.NewError(id, message, domain.ProtocolVersion))
}

func (c *Communicator) handleIncoming(in core.Inbound) {
	if c.disposed.Load() {
		c.metrics.count(outcomeDisposed)
		return
	}

	req, ok := c.validator.Accept(in)
	if !ok {
		c.metrics.count(outcomeInvalid)
		return
	}

	h, ok := c.registry.Get(req.Method)
	if !ok {
		c.metrics.count(outcomeUnhandled)
		c.log.Debug().Str("method", req.WireMethod).Str("id", string(req.ID)).Msg("no handler")
		if c.replyUnhandled {
			c.SendError(req.ID, "method not handled: "+req.Method.String())
		}
		return
	}

	release := func() {}
	if c.admission != nil {
		if release, ok = c.admission.Admit(in.Source); !ok {
			c.metrics.count(outcomeRejected)
			c.log.Warn().Str("method", req.WireMethod).Str("id", string(req.ID)).Msg("request rejected by admission policy")
			c.SendError(req.ID, tooManyRequests)
			return
		}
	}

	c.logCall(req)
	call := &Call{Request: req, Source: in.Source, Origin: in.Origin, Raw: in.Data}
	c.wg.Go(func() {
		defer release()
		c.dispatch(call, h)
	})
}

func (c *Communicator) dispatch(call *Call, h Handler) {
	req := call.Request
	done := c.metrics.started()
	res := c.invoke(call, h)
	done(req.Method.String())
	c.metrics.count(res.Outcome().String())

	switch res.Outcome() {
	case OutcomeDeferred:
		c.log.Debug().Str("method", req.WireMethod).Str("id", string(req.ID)).Msg("reply deferred")
	case OutcomeFailed:
		msg := fallbackErrorMessage
		if err := res.Err(); err != nil && err.Error() != "" {
			msg = err.Error()
		}
		c.log.Warn().Str("method", req.WireMethod).Str("id", string(req.ID)).Str("error", msg).Msg("handler failed")
		c.SendError(req.ID, msg)
	default:
		if err := c.Send(req.ID, res.Value()); err != nil {
			c.log.Error().Err(err).Str("method", req.WireMethod).Str("id", string(req.ID)).Msg("encode reply")
			c.SendError(req.ID, err.Error())
		}
	}
}

// invoke runs h and turns a panic into a failed result.
func (c *Communicator) invoke(call *Call, h Handler) Result {
	var (
		res Result
		pc  panics.Catcher
	)
	pc.Try(func() { res = h(c.ctx, call) })
	if r := pc.Recovered(); r != nil {
		c.log.Error().Str("method", call.Request.WireMethod).Str("panic", r.String()).Msg("handler panicked")
		return Failed(errors.New(fallbackErrorMessage))
	}
	return res
}

func (c *Communicator) post(resp *domain.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		c.log.Error().Err(err).Str("id", string(resp.ID)).Msg("marshal envelope")
		return
	}
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.disposed.Load() {
		c.log.Debug().Str("id", string(resp.ID)).Msg("reply after dispose dropped")
		return
	}
	c.transport.Post(b)
}

func (c *Communicator) logCall(req *domain.Request) {
	if req.Method == domain.MethodRPCCall && len(c.quiet) > 0 {
		var p struct {
			Call string `json:"call"`
		}
		if err := json.Unmarshal(req.Params, &p); err == nil {
			if _, ok := c.quiet[p.Call]; ok {
				return
			}
		}
	}
	c.log.Debug().Str("method", req.WireMethod).Str("id", string(req.ID)).RawJSON("params", paramsOrNull(req.Params)).Msg("call")
}

func paramsOrNull(p json.RawMessage) []byte {
	if len(p) == 0 {
		return []byte("null")
	}
	return p
}
