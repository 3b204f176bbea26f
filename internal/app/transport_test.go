package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/stretchr/testify/require"
)

const (
	testPeer   core.EndpointID = "app-1"
	testOrigin                 = "https://app.example"
)

// fakeTransport records posts and delivers synchronously to the current subscriber.
type fakeTransport struct {
	mu       sync.Mutex
	posted   []core.Frame
	fn       func(core.Inbound)
	subs     int
	unsubbed int
}

func (f *fakeTransport) Post(fr core.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, fr)
}

func (f *fakeTransport) Subscribe(fn func(core.Inbound)) core.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fn = fn
	f.subs++
	return core.NewSubscription(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fn = nil
		f.unsubbed++
	})
}

func (f *fakeTransport) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fn != nil
}

func (f *fakeTransport) deliverFrom(src core.EndpointID, origin, body string) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(core.Inbound{Source: src, Origin: origin, Data: []byte(body)})
	}
}

func (f *fakeTransport) deliver(body string) {
	f.deliverFrom(testPeer, testOrigin, body)
}

func (f *fakeTransport) frames() []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Frame(nil), f.posted...)
}

func (f *fakeTransport) responses(t *testing.T) []domain.Response {
	t.Helper()
	var out []domain.Response
	for _, fr := range f.frames() {
		var r domain.Response
		require.NoError(t, json.Unmarshal(fr, &r))
		out = append(out, r)
	}
	return out
}

func coreID(s string) core.EndpointID { return core.EndpointID(s) }

func inbound(body string) core.Inbound {
	return core.Inbound{Source: testPeer, Origin: testOrigin, Data: []byte(body)}
}
