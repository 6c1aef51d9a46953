package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/config"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/logging"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/outbox"
	httptransport "github.com/TuNa-eTech/ErgoLifeApp/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat).Named("ergolife-dlqmanager")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, logger, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddress != "" {
		metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
		g.Go(func() error { return httptransport.Run(ctx, metricsSrv, 5*time.Second, logger) })
	}
	g.Go(func() error {
		logger.Info("dlq manager started",
			zap.Duration("interval", cfg.DLQPollInterval),
			zap.Int("max_retries", cfg.DLQMaxRetries),
			zap.Int("batch_size", cfg.DLQBatchSize),
		)
		err := manager.Run(ctx, cfg.DLQPollInterval, cfg.DLQBatchSize)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("dlq manager stopped with error", zap.Error(err))
		os.Exit(1)
	}
}
