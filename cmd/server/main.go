package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/AppBridge/internal/adapters/bus"
	router "github.com/dkeye/AppBridge/internal/adapters/http"
	"github.com/dkeye/AppBridge/internal/app"
	"github.com/dkeye/AppBridge/internal/app/orch"
	"github.com/dkeye/AppBridge/internal/config"
	"github.com/dkeye/AppBridge/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var caller orch.RPCCaller
	if cfg.RPCURL != "" {
		client, err := orch.DialRPC(ctx, cfg.RPCURL)
		if err != nil {
			log.Error().Err(err).Msg("rpc node unavailable, rpcCall disabled")
		} else {
			defer client.Close()
			caller = client
		}
	}

	var admission app.Admission
	if policy := app.NewLimitPolicy(app.LimitPolicyConfig{
		RPS:         cfg.Admission.RPS,
		Burst:       cfg.Admission.Burst,
		MaxInFlight: cfg.Admission.MaxInFlight,
	}); policy != nil {
		admission = policy
	}

	o := orch.New(orch.HostInfo{
		Safe:         cfg.SafeInfo(),
		Chain:        cfg.ChainInfo(),
		TxServiceURL: cfg.TxServiceURL,
	}, caller, orch.NewApprovals(cfg.Approvals.Capacity, cfg.Approvals.TTL), orch.Options{
		Origins:        cfg.AllowedOrigins,
		ReplyUnhandled: cfg.ReplyUnhandled,
		QuietCalls:     cfg.QuietCalls,
		Admission:      admission,
		Metrics:        app.NewMetrics(reg),
	})

	if cfg.SelfCheck.Enabled {
		selfCheck(ctx, cfg.SelfCheck, o)
	}

	r := router.SetupRouter(ctx, cfg, o, reg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("AppBridge server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Close()
	log.Info().Msg("Server exited gracefully")
}

// selfCheck attaches an in-process app over the bus and asks the host for its
// environment before the listener opens.
func selfCheck(ctx context.Context, cfg config.SelfCheckConfig, o *orch.Orchestrator) {
	local := bus.Connect(ctx, bus.New(bus.WithInboxSize(8)), o, "appbridge://host", cfg.Origin)
	defer local.Close()

	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	resp, err := local.Call(checkCtx, domain.MethodGetEnvironmentInfo, nil)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("module", "main").Msg("self-check got no reply")
	case !resp.Success:
		log.Warn().Str("module", "main").Str("error", resp.Error).Msg("self-check failed")
	default:
		log.Info().Str("module", "main").RawJSON("env", resp.Data).Msg("self-check passed")
	}
}
