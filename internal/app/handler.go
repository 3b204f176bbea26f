package app

import (
	"context"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
)

// Call is a validated inbound message handed to a Handler.
type Call struct {
	Request *domain.Request
	Source  core.EndpointID
	Origin  string
	Raw     core.Frame
}

// Handler answers a call. It runs on its own goroutine and may block.
type Handler func(ctx context.Context, call *Call) Result

// Outcome tags a handler Result.
type Outcome int

const (
	// OutcomeHandled: reply with the value.
	OutcomeHandled Outcome = iota
	// OutcomeDeferred: the handler replies on its own, the communicator posts nothing.
	OutcomeDeferred
	// OutcomeFailed: reply with an error envelope.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a handler settles with. The zero Result is Handled(nil).
type Result struct {
	outcome Outcome
	value   any
	err     error
}

// Handled answers with v. A nil v is a legitimate null answer.
func Handled(v any) Result { return Result{outcome: OutcomeHandled, value: v} }

// Deferred tells the communicator the reply goes out some other way.
func Deferred() Result { return Result{outcome: OutcomeDeferred} }

// Failed answers with an error envelope carrying err's message.
func Failed(err error) Result { return Result{outcome: OutcomeFailed, err: err} }

// From converts a conventional (value, error) pair.
func From(v any, err error) Result {
	if err != nil {
		return Failed(err)
	}
	return Handled(v)
}

func (r Result) Outcome() Outcome { return r.outcome }
func (r Result) Value() any       { return r.value }
func (r Result) Err() error       { return r.err }
