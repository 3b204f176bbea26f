package rtc

import (
	"sync"

	"github.com/dkeye/AppBridge/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// dataChannel is the subset of *webrtc.DataChannel the transport needs.
type dataChannel interface {
	Send(data []byte) error
	OnMessage(f func(msg webrtc.DataChannelMessage))
}

// ChannelTransport implements core.Transport over one data channel.
type ChannelTransport struct {
	dc     dataChannel
	id     core.EndpointID
	origin string

	mu        sync.Mutex
	onMessage func(core.Inbound)
	seq       uint64
}

func NewChannelTransport(dc dataChannel, id core.EndpointID, origin string) *ChannelTransport {
	t := &ChannelTransport{dc: dc, id: id, origin: origin}
	dc.OnMessage(t.deliver)
	return t
}

func (t *ChannelTransport) Post(f core.Frame) {
	if err := t.dc.Send(f); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Str("peer", string(t.id)).Msg("frame dropped")
	}
}

func (t *ChannelTransport) Subscribe(fn func(core.Inbound)) core.Subscription {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.onMessage = fn
	t.mu.Unlock()

	return core.NewSubscription(func() {
		t.mu.Lock()
		if t.seq == seq {
			t.onMessage = nil
		}
		t.mu.Unlock()
	})
}

func (t *ChannelTransport) deliver(msg webrtc.DataChannelMessage) {
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	if fn == nil {
		return
	}
	fn(core.Inbound{Source: t.id, Origin: t.origin, Data: msg.Data})
}
