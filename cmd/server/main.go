package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/adapters/auth"
	"github.com/dkeye/Board/internal/adapters/authz"
	"github.com/dkeye/Board/internal/adapters/broker"
	router "github.com/dkeye/Board/internal/adapters/http"
	"github.com/dkeye/Board/internal/app"
	"github.com/dkeye/Board/internal/app/orch"
	"github.com/dkeye/Board/internal/config"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/supervisor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func newProfiles(cfg config.IdentityConfig) (core.ProfileResolver, error) {
	if cfg.BaseURL != "" {
		log.Info().Str("base_url", cfg.BaseURL).Msg("using identity service")
		return auth.NewHTTPProfileClient(cfg.BaseURL, cfg.Timeout), nil
	}
	profiles, err := auth.ParseStaticProfiles(cfg.Profiles)
	if err != nil {
		return nil, err
	}
	log.Info().Int("profiles", len(profiles)).Msg("using static profiles")
	return profiles, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	profiles, err := newProfiles(cfg.Identity)
	if err != nil {
		return fmt.Errorf("identity profiles: %w", err)
	}
	checker, err := authz.NewChecker(cfg.Authz.PolicyPath)
	if err != nil {
		return fmt.Errorf("authz: %w", err)
	}
	ps, err := broker.New(cfg.Relay, broker.NewLogger())
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	defer func() {
		if err := ps.Close(); err != nil {
			log.Warn().Err(err).Msg("broker close failed")
		}
	}()

	reg := app.NewRegistry()
	hub := core.NewHub(core.HubOptions{
		LockTimeout: cfg.Locks.Timeout,
		OnDrop:      app.DropHandler(reg, app.SimplePolicy{}),
	})
	relay := app.NewRelay(hub, ps.Publisher, ps.Subscriber, cfg.Relay.Topic)

	o := &orch.Orchestrator{
		Gateway: &app.Gateway{
			Verifier: verifier,
			Profiles: profiles,
			Registry: reg,
			Hub:      hub,
		},
		Registry: reg,
		Hub:      hub,
		Access:   checker,
		Relay:    relay,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpSvc := supervisor.NewHTTPServerService(srv, cfg.ShutdownTimeout)
	httpSvc.BeforeShutdown = func() {
		n := reg.CancelAll()
		log.Info().Int("sessions", n).Msg("Shutting down")
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.ShutdownTimeout})
	tree.AddRealtimeService(relay)
	tree.AddRealtimeService(&app.LockSweeper{Hub: hub, Interval: cfg.Locks.SweepInterval})
	tree.AddAPIService(httpSvc)

	log.Info().Str("addr", addr).Str("relay", cfg.Relay.Driver).Msg("Board server started")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		log.Warn().Int("services", len(report)).Msg("services did not stop in time")
	}
	return nil
}
