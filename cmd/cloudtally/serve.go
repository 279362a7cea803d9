package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/cloudtally/internal/api"
	"github.com/alecgard/cloudtally/internal/auth"
	"github.com/alecgard/cloudtally/internal/cloud"
	"github.com/alecgard/cloudtally/internal/history"
	"github.com/alecgard/cloudtally/internal/metrics"
	"github.com/alecgard/cloudtally/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cloudtally API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	aggregator, err := newAggregator(cfg)
	if err != nil {
		return err
	}
	aggregator.SetMetrics(m)

	limiter := ratelimit.New(cfg.LoginRateLimit.Attempts, cfg.LoginRateLimit.Window)
	go limiter.Run(ctx, cfg.LoginRateLimit.Window)

	deps := api.RouterDeps{
		Provider:   newProvider(cfg),
		Aggregator: aggregator,
		Issuer:     auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		ServiceAccount: cloud.Credential{
			Principal: cfg.Backend.Username,
			Secret:    cfg.Backend.Password,
		},
		LoginLimiter:   limiter,
		Metrics:        m,
		MaxHistory:     cfg.History.MaxList,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}

	var collector *history.Collector
	if cfg.HistoryEnabled() {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return err
		}
		slog.Info("connected to database")

		m.RegisterDBPoolCollector(func() metrics.PoolStats {
			s := pool.Stat()
			return metrics.PoolStats{
				Total:    s.TotalConns(),
				Idle:     s.IdleConns(),
				Acquired: s.AcquiredConns(),
				Max:      s.MaxConns(),
			}
		})

		store := history.NewStore(pool)
		collector = history.NewCollector(store, cfg.History.BatchSize, cfg.History.FlushInterval)
		collector.SetMetrics(m)
		go collector.Start(ctx)

		deps.History = collector
		deps.HistoryReader = store
	} else {
		slog.Info("cost history disabled: no database configured")
	}

	if cfg.Backend.Username == "" || cfg.Backend.Password == "" {
		slog.Warn("backend service account is not configured; /api/resources will report unavailable")
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "backend", cfg.Backend.AuthURL, "region", cfg.Backend.Region)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err = srv.Shutdown(shutdownCtx)

	if collector != nil {
		collector.Stop()
	}
	return err
}
