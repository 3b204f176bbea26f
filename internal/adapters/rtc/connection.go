// Package rtc carries the bridge protocol over WebRTC data channels.
package rtc

import (
	"context"
	"net/http"
	"sync"

	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Host attaches a communicator to every opened data channel.
type Host interface {
	Attach(ctx context.Context, peer core.EndpointID, t core.Transport) *app.Communicator
	Detach(peer core.EndpointID)
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	id     string
	origin string
	cancel context.CancelFunc

	mu    sync.Mutex
	peers []core.EndpointID
}

func NewWebRTCConnection(cfg webrtc.Configuration, origin string) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, id: uuid.NewString(), origin: origin}, nil
}

// Start wires data channels opened by the app to host. The connection lives until
// ctx ends or the peer connection fails.
func (c *WebRTCConnection) Start(ctx context.Context, host Host) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("conn", c.id).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.detachAll(host)
			cancel()
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		peer := core.EndpointID(uuid.NewString())
		log.Info().Str("module", "webrtc").Str("conn", c.id).Str("label", dc.Label()).Str("peer", string(peer)).Msg("data channel")

		dc.OnOpen(func() {
			t := NewChannelTransport(dc, peer, c.origin)
			c.mu.Lock()
			c.peers = append(c.peers, peer)
			c.mu.Unlock()
			host.Attach(ctx, peer, t)
		})
		dc.OnClose(func() {
			host.Detach(peer)
		})
	})

	go func() {
		<-ctx.Done()
		c.Close()
	}()
}

func (c *WebRTCConnection) detachAll(host Host) {
	c.mu.Lock()
	peers := c.peers
	c.peers = nil
	c.mu.Unlock()
	for _, p := range peers {
		host.Detach(p)
	}
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("conn", c.id).Msg("close error")
	}
}

// OfferController answers SDP offers from embedded apps.
type OfferController struct {
	Host   Host
	Config webrtc.Configuration
}

type offerPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp" binding:"required"`
}

func (ctl *OfferController) HandleOffer(ctx context.Context, c *gin.Context) {
	var p offerPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}

	wc, err := NewWebRTCConnection(ctl.Config, c.Request.Header.Get("Origin"))
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("webrtc new pc")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webrtc_unavailable"})
		return
	}
	wc.Start(ctx, ctl.Host)

	answer, err := wc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Msg("webrtc apply offer")
		wc.Close()
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_offer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type": "answer",
		"sdp":  answer.SDP,
	})
}
