package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrApprovalNotFound = errors.New("approval not found")
	ErrPeerGone         = errors.New("peer gone")
)

// HostInfo is what the host tells embedded apps about itself.
type HostInfo struct {
	Safe         domain.SafeInfo
	Chain        domain.ChainInfo
	TxServiceURL string
}

type Options struct {
	Origins        []string
	ReplyUnhandled bool
	QuietCalls     []string
	Admission      app.Admission
	Metrics        *app.Metrics
}

// Orchestrator attaches one communicator per connected app and owns the host-side
// handlers they share.
type Orchestrator struct {
	Info      HostInfo
	RPC       RPCCaller
	Approvals *Approvals

	opts     Options
	registry *app.Registry

	mu    sync.RWMutex
	peers map[core.EndpointID]*app.Communicator
}

// New builds the orchestrator and registers the host handlers. rpc may be nil, in
// which case rpcCall requests fail.
func New(info HostInfo, rpc RPCCaller, approvals *Approvals, opts Options) *Orchestrator {
	o := &Orchestrator{
		Info:      info,
		RPC:       rpc,
		Approvals: approvals,
		opts:      opts,
		registry:  app.NewRegistry(),
		peers:     make(map[core.EndpointID]*app.Communicator),
	}
	if approvals != nil {
		approvals.onExpire = o.expire
	}
	o.registerHandlers()
	return o
}

func (o *Orchestrator) Registry() *app.Registry { return o.registry }

// Attach starts serving peer on t. A previous communicator for the same peer is disposed.
func (o *Orchestrator) Attach(ctx context.Context, peer core.EndpointID, t core.Transport) *app.Communicator {
	opts := []app.Option{
		app.WithRegistry(o.registry),
		app.WithUnhandledReply(o.opts.ReplyUnhandled),
		app.WithQuietCalls(o.opts.QuietCalls...),
		app.WithMetrics(o.opts.Metrics),
	}
	if len(o.opts.Origins) > 0 {
		opts = append(opts, app.WithOrigins(o.opts.Origins...))
	}
	if o.opts.Admission != nil {
		opts = append(opts, app.WithAdmission(o.opts.Admission))
	}
	c := app.New(ctx, t, peer, opts...)

	o.mu.Lock()
	prev := o.peers[peer]
	o.peers[peer] = c
	o.mu.Unlock()

	if prev != nil {
		prev.Dispose()
	}
	log.Info().Str("module", "app.orch").Str("peer", string(peer)).Int("methods", len(o.registry.Methods())).Msg("app attached")
	return c
}

// Detach disposes the communicator of peer and forgets its pending approvals.
func (o *Orchestrator) Detach(peer core.EndpointID) {
	o.mu.Lock()
	c, ok := o.peers[peer]
	delete(o.peers, peer)
	o.mu.Unlock()
	if !ok {
		return
	}
	c.Dispose()
	if o.Approvals != nil {
		o.Approvals.DropPeer(peer)
	}
	log.Info().Str("module", "app.orch").Str("peer", string(peer)).Msg("app detached")
}

func (o *Orchestrator) Communicator(peer core.EndpointID) (*app.Communicator, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.peers[peer]
	return c, ok
}

func (o *Orchestrator) Peers() []core.EndpointID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]core.EndpointID, 0, len(o.peers))
	for p := range o.peers {
		out = append(out, p)
	}
	return out
}

// Close disposes every communicator and waits for running handlers to settle.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	peers := o.peers
	o.peers = make(map[core.EndpointID]*app.Communicator)
	o.mu.Unlock()

	for _, c := range peers {
		c.Dispose()
	}
	for _, c := range peers {
		c.Wait()
	}
	log.Info().Str("module", "app.orch").Int("peers", len(peers)).Msg("closed")
}

// Confirm answers a parked request with result.
func (o *Orchestrator) Confirm(approvalID string, result any) error {
	p, c, err := o.takeApproval(approvalID)
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.orch").Str("approval", approvalID).Str("method", p.Method.String()).Msg("approval confirmed")
	return c.Send(p.RequestID, result)
}

// Reject answers a parked request with an error envelope.
func (o *Orchestrator) Reject(approvalID, reason string) error {
	p, c, err := o.takeApproval(approvalID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = defaultRejectReason(p.Method)
	}
	log.Info().Str("module", "app.orch").Str("approval", approvalID).Str("method", p.Method.String()).Msg("approval rejected")
	c.SendError(p.RequestID, reason)
	return nil
}

func (o *Orchestrator) takeApproval(id string) (*Pending, *app.Communicator, error) {
	if o.Approvals == nil {
		return nil, nil, ErrApprovalNotFound
	}
	p, ok := o.Approvals.Take(id)
	if !ok {
		return nil, nil, ErrApprovalNotFound
	}
	c, ok := o.Communicator(p.Peer)
	if !ok {
		return nil, nil, ErrPeerGone
	}
	return p, c, nil
}

func (o *Orchestrator) expire(p *Pending) {
	c, ok := o.Communicator(p.Peer)
	if !ok {
		return
	}
	log.Info().Str("module", "app.orch").Str("approval", p.ID).Str("method", p.Method.String()).Msg("approval expired")
	c.SendError(p.RequestID, "request expired")
}

func defaultRejectReason(m domain.Method) string {
	switch m {
	case domain.MethodSendTransactions:
		return "Transaction was rejected"
	default:
		return "Signature request was rejected"
	}
}
