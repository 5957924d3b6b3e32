package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/storeaudit/internal/api"
	"github.com/soaringjerry/storeaudit/internal/metrics"
	"github.com/soaringjerry/storeaudit/internal/middleware"
	"github.com/soaringjerry/storeaudit/internal/notify"
	"github.com/soaringjerry/storeaudit/internal/services"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := openApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var notifier services.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.Notify.NATSURL != "" {
		nc, err := notify.Connect(cfg.Notify.NATSURL, cfg.Notify.Subject, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer func() {
			if err := nc.Close(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		}()
		notifier = nc
	}

	audits := services.NewAuditService(a.store,
		services.WithLogger(logger),
		services.WithMetrics(m),
		services.WithNotifier(notifier),
		services.WithAuditConfig(services.AuditConfig{
			RequiredPhotoTypes: cfg.Audit.RequiredPhotoTypes,
			DebounceDelay:      cfg.Audit.DebounceDelay,
			WriteTimeout:       cfg.Audit.WriteTimeout,
		}),
	)
	sessions := services.NewSessionManager(audits, cfg.Server.SessionIdle, logger)
	go sessions.Run(ctx)

	router := api.NewRouter(api.Deps{
		Catalog:     services.NewCatalogService(a.store, logger),
		Audits:      audits,
		Sessions:    sessions,
		Analytics:   services.NewAnalyticsService(a.store),
		Auth:        middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Metrics:     m,
		Gatherer:    reg,
		Logger:      logger,
		CORSOrigins: cfg.Server.CORSOrigins,
		Build:       api.BuildInfo{Version: Version, Commit: Commit, BuildTime: BuildTime},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("storeaudit listening", "addr", cfg.Server.Addr, "db", cfg.Database.Driver, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	if n := sessions.CloseAll(); n > 0 {
		logger.Info("sessions flushed", "count", n)
	}
	return nil
}
