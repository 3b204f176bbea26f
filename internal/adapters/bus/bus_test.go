package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/dkeye/AppBridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []core.Inbound
}

func (i *inbox) add(in core.Inbound) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, in)
}

func (i *inbox) all() []core.Inbound {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]core.Inbound(nil), i.msgs...)
}

func TestEndpoint_PostTo(t *testing.T) {
	b := New()
	host := b.Open("https://host.example")
	guest := b.Open("https://app.example")
	defer host.Close()
	defer guest.Close()

	var got inbox
	sub := host.Listen(got.add)
	defer sub.Unsubscribe()

	payload := core.Frame(`{"id":"1"}`)
	guest.PostTo(host.ID(), payload)
	payload[2] = 'X'

	require.Eventually(t, func() bool { return len(got.all()) == 1 }, time.Second, 5*time.Millisecond)
	msg := got.all()[0]
	assert.Equal(t, guest.ID(), msg.Source)
	assert.Equal(t, "https://app.example", msg.Origin)
	assert.Equal(t, `{"id":"1"}`, string(msg.Data))
}

func TestEndpoint_ListenersAndClose(t *testing.T) {
	b := New()
	host := b.Open("h")
	guest := b.Open("g")
	defer guest.Close()

	var a, c inbox
	subA := host.Listen(a.add)
	host.Listen(c.add)
	assert.Equal(t, 2, host.ListenerCount())

	subA.Unsubscribe()
	subA.Unsubscribe()
	assert.Equal(t, 1, host.ListenerCount())

	guest.PostTo(host.ID(), core.Frame("x"))
	require.Eventually(t, func() bool { return len(c.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, a.all())

	host.Close()
	host.Close()
	assert.Equal(t, 0, host.ListenerCount())
	guest.PostTo(host.ID(), core.Frame("y"))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.all(), 1)
}

func TestEndpoint_FullInboxDrops(t *testing.T) {
	b := New(WithInboxSize(1))
	host := b.Open("h")
	guest := b.Open("g")
	defer host.Close()
	defer guest.Close()

	for i := 0; i < 10; i++ {
		guest.PostTo(host.ID(), core.Frame("x"))
	}
	var got inbox
	host.Listen(got.add)
	guest.PostTo(host.ID(), core.Frame("y"))

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(got.all()), 2)
}

func TestTransport_SubscribeReplaces(t *testing.T) {
	b := New()
	host := b.Open("h")
	guest := b.Open("g")
	defer host.Close()
	defer guest.Close()

	tr := NewTransport(host, guest.ID())
	assert.Equal(t, guest.ID(), tr.Peer())

	var first, second inbox
	s1 := tr.Subscribe(first.add)
	tr.Subscribe(second.add)
	assert.Equal(t, 1, host.ListenerCount())

	s1.Unsubscribe()
	assert.Equal(t, 1, host.ListenerCount())

	guest.PostTo(host.ID(), core.Frame("z"))
	require.Eventually(t, func() bool { return len(second.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, first.all())
}

// The full round trip: an app endpoint calls the host through a communicator.
func TestTransport_CommunicatorRoundTrip(t *testing.T) {
	b := New()
	host := b.Open("https://host.example")
	guest := b.Open("https://app.example")
	defer host.Close()
	defer guest.Close()

	c := app.New(context.Background(), NewTransport(host, guest.ID()), guest.ID())
	defer c.Dispose()
	require.NoError(t, c.On(domain.MethodGetSafeInfo, func(context.Context, *app.Call) app.Result {
		return app.Handled(map[string]bool{"pong": true})
	}))

	var replies inbox
	guest.Listen(replies.add)
	guest.PostTo(host.ID(), core.Frame(`{"id":"1","method":"getSafeInfo","params":{}}`))

	require.Eventually(t, func() bool { return len(replies.all()) == 1 }, time.Second, 5*time.Millisecond)
	msg := replies.all()[0]
	assert.Equal(t, host.ID(), msg.Source)
	assert.JSONEq(t, `{"id":"1","success":true,"version":"7.6.0","data":{"pong":true}}`, string(msg.Data))

	var resp domain.Response
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, domain.ProtocolVersion, resp.Version)

	stranger := b.Open("https://app.example")
	defer stranger.Close()
	stranger.PostTo(host.ID(), core.Frame(`{"id":"2","method":"getSafeInfo"}`))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, replies.all(), 1)
}
