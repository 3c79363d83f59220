package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dallylee/pt-authority-hub-landing/internal/config"
	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
	"github.com/dallylee/pt-authority-hub-landing/internal/outbox"
	httptransport "github.com/dallylee/pt-authority-hub-landing/internal/transport/http"
)

const defaultDLQBatchSize = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	zl := logger.NewZap(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = zl.Sync() }()
	log := logger.FromZap(zl).With("service", "pt-hub-dlqmanager")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("dlq manager exited", nil)
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay).WithLogger(log)

	metrics := httptransport.NewServer(httptransport.MetricsDefaults(cfg.MetricsAddress), promhttp.Handler(), log)
	go func() {
		if err := metrics.Run(ctx); err != nil {
			log.WithError(err).Error("metrics server error", nil)
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Info("dlq manager started", map[string]interface{}{
		"interval":    cfg.DLQPollInterval.String(),
		"max_retries": cfg.DLQMaxRetries,
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("dlq manager stopped", nil)
			return nil
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				log.WithError(err).Error("dlq manager run failed", nil)
			} else if processed > 0 {
				log.Info("dlq entries processed", map[string]interface{}{"count": processed})
			}
		}
	}
}
