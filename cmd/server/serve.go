package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"authgate/internal/config"
	apphttp "authgate/internal/http"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		logger.Errorf("setup: %v", err)
		return err
	}
	defer a.Close()

	checks := map[string]apphttp.Pinger{"sqlite": apphttp.PingerFunc(a.db.PingContext)}
	if a.rdb != nil {
		checks["redis"] = a.sessions
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(a.auth, apphttp.Options{
		Cookie: apphttp.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			MaxAge: cfg.Session.TTL,
		},
		AllowOrigins: cfg.CORS.AllowOrigins,
		Checks:       checks,
		Gatherer:     a.registry,
		Logger:       logger,
	}).RegisterRoutes(router)

	if cfg.Session.Backend == config.BackendSQLite && cfg.Session.PurgeInterval > 0 {
		go purgeLoop(ctx, a, cfg.Session.PurgeInterval)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Errorf("http server: %v", err)
		return err
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}

// purgeLoop removes expired sessions every interval until ctx is done.
func purgeLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.session.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warnf("purge expired sessions: %v", err)
			}
		}
	}
}
