package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/AppBridge/internal/adapters/rtc"
	"github.com/dkeye/AppBridge/internal/adapters/signal"
	"github.com/dkeye/AppBridge/internal/app/orch"
	"github.com/dkeye/AppBridge/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("AppBridgeSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": len(o.Peers())})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	ws := signal.NewSignalWSController(o, signal.Config{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		AllowedOrigins: cfg.AllowedOrigins,
		ConnectLimit:   cfg.ConnectLimit,
		ConnectWindow:  cfg.ConnectWindow,
	})
	api.GET("/ws/app", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws app endpoint hit")
		ws.HandleApp(ctx, c)
	})

	offers := &rtc.OfferController{Host: o, Config: rtc.DefaultWebRTCConfig()}
	api.POST("/rtc/offer", func(c *gin.Context) {
		offers.HandleOffer(ctx, c)
	})

	approvals := &ApprovalsHandler{Orch: o}
	api.GET("/approvals", approvals.List)
	api.GET("/approvals/:id", approvals.Get)
	api.POST("/approvals/:id/confirm", approvals.Confirm)
	api.POST("/approvals/:id/reject", approvals.Reject)

	return r
}

// ApprovalsHandler exposes the parked requests to the operator.
type ApprovalsHandler struct {
	Orch *orch.Orchestrator
}

func (h *ApprovalsHandler) List(c *gin.Context) {
	items := []*orch.Pending{}
	if h.Orch.Approvals != nil {
		items = append(items, h.Orch.Approvals.List()...)
	}
	c.JSON(http.StatusOK, gin.H{"approvals": items})
}

func (h *ApprovalsHandler) Get(c *gin.Context) {
	if h.Orch.Approvals == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	p, ok := h.Orch.Approvals.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

type confirmPayload struct {
	Result any `json:"result"`
}

type rejectPayload struct {
	Reason string `json:"reason"`
}

func (h *ApprovalsHandler) Confirm(c *gin.Context) {
	var p confirmPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	h.reply(c, h.Orch.Confirm(c.Param("id"), p.Result))
}

func (h *ApprovalsHandler) Reject(c *gin.Context) {
	var p rejectPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	h.reply(c, h.Orch.Reject(c.Param("id"), p.Reason))
}

func (h *ApprovalsHandler) reply(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, orch.ErrApprovalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, orch.ErrPeerGone):
		c.JSON(http.StatusGone, gin.H{"error": "peer_gone"})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("approval", c.Param("id")).Msg("approval reply")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply_failed"})
	}
}
