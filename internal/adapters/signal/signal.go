// Package signal carries the bridge protocol over a websocket per embedded app.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Host attaches a communicator to every accepted connection.
type Host interface {
	Attach(ctx context.Context, peer core.EndpointID, t core.Transport) *app.Communicator
	Detach(peer core.EndpointID)
}

type Config struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	WriteTimeout   time.Duration
	SendQueue      int
	AllowedOrigins []string
	ConnectLimit   int
	ConnectWindow  time.Duration
}

type SignalWSController struct {
	Host     Host
	cfg      Config
	upgrader websocket.Upgrader
	connects *ConnectLimiter
}

func NewSignalWSController(host Host, cfg Config) *SignalWSController {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 32
	}
	ctl := &SignalWSController{
		Host:     host,
		cfg:      cfg,
		connects: NewConnectLimiter(cfg.ConnectLimit, cfg.ConnectWindow),
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range ctl.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	log.Warn().Str("module", "signal").Str("origin", origin).Msg("origin refused")
	return false
}

// WsSignalConn is one embedded app connection. It implements core.Transport.
type WsSignalConn struct {
	conn   *websocket.Conn
	id     core.EndpointID
	origin string
	send   chan core.Frame

	mu     sync.RWMutex
	closed bool

	subMu     sync.Mutex
	onMessage func(core.Inbound)
	subSeq    uint64
}

func newWsSignalConn(ws *websocket.Conn, origin string, queue int) *WsSignalConn {
	return &WsSignalConn{
		conn:   ws,
		id:     core.EndpointID(uuid.NewString()),
		origin: origin,
		send:   make(chan core.Frame, queue),
	}
}

func (c *WsSignalConn) ID() core.EndpointID { return c.id }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Post queues f for the write pump. Failures are logged, never returned.
func (c *WsSignalConn) Post(f core.Frame) {
	if err := c.TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(c.id)).Msg("frame dropped")
	}
}

func (c *WsSignalConn) Subscribe(fn func(core.Inbound)) core.Subscription {
	c.subMu.Lock()
	c.subSeq++
	seq := c.subSeq
	c.onMessage = fn
	c.subMu.Unlock()

	return core.NewSubscription(func() {
		c.subMu.Lock()
		if c.subSeq == seq {
			c.onMessage = nil
		}
		c.subMu.Unlock()
	})
}

func (c *WsSignalConn) deliver(data []byte) {
	c.subMu.Lock()
	fn := c.onMessage
	c.subMu.Unlock()
	if fn == nil {
		return
	}
	fn(core.Inbound{Source: c.id, Origin: c.origin, Data: data})
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *SignalWSController) HandleApp(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	origin := c.Request.Header.Get("Origin")

	if !ctl.connects.Allow(token) {
		log.Warn().Str("module", "signal").Str("client_token", token).Msg("too many connection attempts")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	conn := newWsSignalConn(ws, origin, ctl.cfg.SendQueue)
	log.Info().Str("module", "signal").Str("peer", string(conn.id)).Str("client_token", token).Str("origin", origin).Msg("app connected")

	ctx, cancel := context.WithCancel(ctx)
	ctl.Host.Attach(ctx, conn.id, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
