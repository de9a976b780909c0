package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"leadtrack.io/internal/auth"
	"leadtrack.io/internal/config"
	"leadtrack.io/internal/httpapi"
	"leadtrack.io/internal/lead"
	"leadtrack.io/internal/obs"
	"leadtrack.io/internal/store/memory"
	"leadtrack.io/internal/store/pg"
	"leadtrack.io/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what the services need from a store.
type backend interface {
	auth.DirectoryStore
	lead.Store
	Ping(ctx context.Context) error
}

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("set log level")
	}
	log = obs.Logger()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var store backend
	closeStore := func() error { return nil }
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		store, closeStore = pgStore, pgStore.Close
	} else {
		log.Warn().Msg("LEADTRACK_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	tokens, err := auth.NewTokens(auth.TokenConfig{
		Secret:      cfg.AuthSecret,
		Issuer:      cfg.AuthIssuer,
		AccessTTL:   cfg.AccessTTL,
		RefreshDays: cfg.RefreshDays,
	}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("token issuer")
	}
	authSvc, err := auth.NewService(store, tokens,
		auth.WithBcryptCost(cfg.BcryptCost),
		auth.WithLogger(log),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}
	dir, err := auth.NewDirectory(store, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("directory")
	}
	hub := stream.New[lead.StatusChange]()
	leads, err := lead.NewService(store, auth.NewGuard(store),
		lead.WithEvents(hub),
		lead.WithLogger(log),
		lead.WithPhoneRegion(cfg.PhoneRegion),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("lead service")
	}

	probe := httpapi.ReadyProbe{Store: store}
	api := httpapi.New(authSvc, dir, leads, probe, httpapi.Config{
		Version:        version,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		RateBurst:      cfg.LoginBurst,
		RatePerSec:     cfg.LoginPerSec,
		Events:         hub,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	httpapi.NewHealthServer(probe).Register(grpcSrv)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("grpc listen")
	}

	log.Info().
		Str("version", version).
		Str("http_addr", srv.Addr).
		Str("grpc_addr", cfg.GRPCAddr).
		Msg("starting leadtrack-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http listen")
		}
	}()
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatal().Err(err).Msg("grpc serve")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	grpcSrv.GracefulStop()
	if err := closeStore(); err != nil {
		log.Error().Err(err).Msg("close store")
	}
	log.Info().Msg("stopped")
}
