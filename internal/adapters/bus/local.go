package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/rs/zerolog/log"
)

// Host serves apps attached over the bus.
type Host interface {
	Attach(ctx context.Context, peer core.EndpointID, t core.Transport) *app.Communicator
	Detach(peer core.EndpointID)
}

// LocalApp is an in-process app: it talks to the host over a pair of bus endpoints
// and correlates replies to its calls by request id.
type LocalApp struct {
	host   Host
	hostEP *Endpoint
	appEP  *Endpoint
	sub    core.Subscription

	seq     atomic.Uint64
	mu      sync.Mutex
	waiting map[domain.RequestID]chan *domain.Response
}

// Connect opens both endpoints on b and attaches the app side to host.
func Connect(ctx context.Context, b *Bus, host Host, hostOrigin, appOrigin string) *LocalApp {
	l := &LocalApp{
		host:    host,
		hostEP:  b.Open(hostOrigin),
		appEP:   b.Open(appOrigin),
		waiting: make(map[domain.RequestID]chan *domain.Response),
	}
	l.sub = l.appEP.Listen(l.receive)
	host.Attach(ctx, l.appEP.ID(), NewTransport(l.hostEP, l.appEP.ID()))
	return l
}

func (l *LocalApp) ID() core.EndpointID { return l.appEP.ID() }

type localRequest struct {
	ID     domain.RequestID `json:"id"`
	Method domain.Method    `json:"method"`
	Params any              `json:"params,omitempty"`
}

// Call posts a request and waits for its envelope. Methods the host leaves
// unanswered block until ctx is done.
func (l *LocalApp) Call(ctx context.Context, method domain.Method, params any) (*domain.Response, error) {
	id := domain.RequestID(fmt.Sprintf("local-%d", l.seq.Add(1)))
	body, err := json.Marshal(localRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	ch := make(chan *domain.Response, 1)
	l.mu.Lock()
	l.waiting[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiting, id)
		l.mu.Unlock()
	}()

	l.appEP.PostTo(l.hostEP.ID(), body)

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *LocalApp) receive(in core.Inbound) {
	if in.Source != l.hostEP.ID() {
		return
	}
	var resp domain.Response
	if err := json.Unmarshal(in.Data, &resp); err != nil {
		log.Debug().Err(err).Str("module", "adapters.bus").Msg("local app ignored non-envelope")
		return
	}
	l.mu.Lock()
	ch, ok := l.waiting[resp.ID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- &resp:
	default:
	}
}

// Close detaches the app from the host and closes both endpoints.
func (l *LocalApp) Close() {
	l.sub.Unsubscribe()
	l.host.Detach(l.appEP.ID())
	l.appEP.Close()
	l.hostEP.Close()
}
