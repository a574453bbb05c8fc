package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tessera.dev/internal/auth"
	"tessera.dev/internal/config"
	"tessera.dev/internal/httpapi"
	"tessera.dev/internal/obs"
	"tessera.dev/internal/store/memory"
	"tessera.dev/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.LogLevel, cfg.LogFormat, "tessera-api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	obs.Init(version, commit)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store auth.Store
		probe httpapi.ReadyProbe
	)
	if cfg.Postgres.DSN != "" {
		pgStore, err := pg.Open(ctx, pg.PoolConfig{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.ConnMaxLifetime,
			RetryAttempts:   cfg.Postgres.RetryAttempts,
			RetryInterval:   cfg.Postgres.RetryInterval,
		})
		if err != nil {
			return err
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore}
	} else {
		if cfg.IsProduction() {
			return errors.New("TESSERA_PG_DSN is required in production")
		}
		logger.Warn("no database configured, using in-memory store")
		store = memory.New()
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return err
	}
	api, err := httpapi.New(store, tokens, probe, version,
		httpapi.WithLogger(logger),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)
	if err != nil {
		return err
	}
	if err := api.Service().Catalog.EnsureBuiltins(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting tessera-api", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
