package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) registerHandlers() {
	handlers := map[domain.Method]app.Handler{
		domain.MethodGetSafeInfo:          o.handleGetSafeInfo,
		domain.MethodGetChainInfo:         o.handleGetChainInfo,
		domain.MethodGetEnvironmentInfo:   o.handleGetEnvironmentInfo,
		domain.MethodGetEnvInfo:           o.handleLegacyEnvInfo,
		domain.MethodWalletGetPermissions: o.handleGetPermissions,
		domain.MethodRPCCall:              o.handleRPCCall,
		domain.MethodSendTransactions:     o.handleSendTransactions,
		domain.MethodSignMessage:          o.handleSignMessage,
		domain.MethodSignTypedMessage:     o.handleSignTypedMessage,
	}
	for m, h := range handlers {
		if err := o.registry.Register(m, h); err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("method", m.String()).Msg("register handler")
		}
	}

	var unbound []string
	for _, m := range o.Unbound() {
		unbound = append(unbound, m.String())
	}
	log.Debug().Str("module", "app.orch").Strs("unbound", unbound).Msg("host handlers registered")
}

// Unbound lists the wire methods no host handler answers.
func (o *Orchestrator) Unbound() []domain.Method {
	var out []domain.Method
	for _, m := range domain.KnownMethods() {
		if _, ok := o.registry.Get(m); !ok {
			out = append(out, m)
		}
	}
	return out
}

func (o *Orchestrator) handleGetSafeInfo(_ context.Context, _ *app.Call) app.Result {
	return app.Handled(o.Info.Safe)
}

func (o *Orchestrator) handleGetChainInfo(_ context.Context, _ *app.Call) app.Result {
	return app.Handled(o.Info.Chain)
}

func (o *Orchestrator) handleGetEnvironmentInfo(_ context.Context, call *app.Call) app.Result {
	return app.Handled(domain.EnvironmentInfo{Origin: call.Origin})
}

// handleLegacyEnvInfo answers the bootstrap probe.
func (o *Orchestrator) handleLegacyEnvInfo(_ context.Context, _ *app.Call) app.Result {
	return app.Handled(map[string]string{"txServiceUrl": o.Info.TxServiceURL})
}

func (o *Orchestrator) handleGetPermissions(_ context.Context, _ *app.Call) app.Result {
	return app.Handled([]domain.Permission{})
}

func (o *Orchestrator) handleRPCCall(ctx context.Context, call *app.Call) app.Result {
	var p rpcCallParams
	if err := call.Request.Bind(&p); err != nil {
		return app.Failed(err)
	}
	return app.From(forwardRPC(ctx, o.RPC, p))
}

type baseTransaction struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

type sendTransactionsParams struct {
	Txs    []baseTransaction `json:"txs"`
	Params struct {
		SafeTxGas *uint64 `json:"safeTxGas,omitempty"`
	} `json:"params"`
}

func (o *Orchestrator) handleSendTransactions(_ context.Context, call *app.Call) app.Result {
	var p sendTransactionsParams
	if err := call.Request.Bind(&p); err != nil {
		return app.Failed(err)
	}
	if len(p.Txs) == 0 {
		return app.Failed(errors.New("no transactions"))
	}
	for i, tx := range p.Txs {
		if err := domain.ValidateSafeAddress(tx.To); err != nil {
			return app.Failed(fmt.Errorf("transaction #%d: to: %w", i, err))
		}
	}
	return o.park(call)
}

func (o *Orchestrator) handleSignMessage(_ context.Context, call *app.Call) app.Result {
	var p struct {
		Message string `json:"message"`
	}
	if err := call.Request.Bind(&p); err != nil {
		return app.Failed(err)
	}
	if p.Message == "" {
		return app.Failed(errors.New("empty message"))
	}
	return o.park(call)
}

func (o *Orchestrator) handleSignTypedMessage(_ context.Context, call *app.Call) app.Result {
	var p struct {
		TypedData map[string]any `json:"typedData"`
	}
	if err := call.Request.Bind(&p); err != nil {
		return app.Failed(err)
	}
	if len(p.TypedData) == 0 {
		return app.Failed(errors.New("empty typed data"))
	}
	return o.park(call)
}

// park hands the request to the operator; the reply is posted on Confirm, Reject or expiry.
func (o *Orchestrator) park(call *app.Call) app.Result {
	if o.Safe().IsReadOnly {
		return app.Failed(errors.New("safe is read-only"))
	}
	if o.Approvals == nil {
		return app.Failed(errors.New("approvals unavailable"))
	}
	id := o.Approvals.Park(&Pending{
		Peer:      call.Source,
		RequestID: call.Request.ID,
		Method:    call.Request.Method,
		Params:    call.Request.Params,
	})
	log.Info().Str("module", "app.orch").Str("approval", id).Str("method", call.Request.WireMethod).Str("peer", string(call.Source)).Msg("request parked for approval")
	return app.Deferred()
}

func (o *Orchestrator) Safe() domain.SafeInfo { return o.Info.Safe }
