// README: Entry point; loads config, wires services and serves the dispatch API until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"dispatch/internal/config"
	httptransport "dispatch/internal/http"
	"dispatch/internal/infra"
	"dispatch/internal/maps"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/surge"
	"dispatch/internal/modules/trip"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dispatch-api:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("dispatch-api", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	logger, err := infra.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()

	deps := trip.Deps{
		DB:          db,
		Trips:       trip.NewStore(),
		Drivers:     driver.NewStore(),
		Surge:       surge.NewService(surge.NewStore()),
		Matcher:     matching.NewService(matching.NewStore(), cfg.Matching),
		LockTimeout: cfg.Dispatch.LockTimeout,
		Logger:      logger,
	}

	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Warn("redis unavailable, candidate cache disabled", "err", err)
		} else {
			defer rdb.Close()
			deps.Cache = matching.NewCandidateCache(rdb, cfg.Redis.CandidateTTL)
		}
	}
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		deps.Routes = routes
	}

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		if verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile); err != nil {
			return fmt.Errorf("firebase init: %w", err)
		}
	} else {
		logger.Warn("firebase.project_id not set; API auth disabled")
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Trips:          trip.NewService(deps),
		Drivers:        driver.NewService(db, deps.Drivers, cfg.Dispatch.LockTimeout, logger),
		Verifier:       verifier,
		Logger:         logger,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
