package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/api"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/auth"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/config"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/logging"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/middleware"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/outbox"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/persistence/memory"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/persistence/postgres"
	httptransport "github.com/TuNa-eTech/ErgoLifeApp/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Must(cfg.LogLevel, cfg.LogFormat).Named("ergolife-api")
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	var repo domain.Repository
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		seedDemo(store, logger)
		repo = store
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = postgres.NewRepository(pool)

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher := outbox.NewDispatcher(pool, producer, registry, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
				outbox.WithClaimLease(cfg.OutboxClaimLease))
			g.Go(func() error {
				dispatcher.Start(ctx)
				dispatcher.Wait()
				return nil
			})
		}
	}

	service := domain.NewService(repo, domain.WithLogger(logger))
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger.Named("ratelimit"))

	mux := http.NewServeMux()
	api.NewHandler(service, logger).RegisterRoutes(mux, limiter.Handler)
	if cfg.MetricsAddress == "" {
		mux.Handle("GET /metrics", promhttp.Handler())
	} else {
		metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
		g.Go(func() error { return httptransport.Run(ctx, metricsSrv, 5*time.Second, logger.Named("metrics")) })
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	var handler http.Handler = mux
	handler = middleware.Timeout(cfg.RequestTimeout, handler)
	handler = authMiddleware.Wrap(handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigin, handler)
	handler = middleware.Observe(logger.Named("http"), middleware.MuxRoute(mux), handler)

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, handler)
	g.Go(func() error { return httptransport.Run(ctx, server, serverCfg.ShutdownTimeout, logger) })

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				limiter.Prune()
			}
		}
	})

	logger.Info("ergolife api started",
		zap.String("addr", cfg.HTTPAddress),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("outbox", cfg.OutboxEnabled && cfg.StoreDriver == config.StoreDriverPostgres),
	)
	return g.Wait()
}

// seedDemo gives the in-memory store one house with a single member so the
// API is usable without ergoctl.
func seedDemo(store *memory.Store, logger *zap.Logger) {
	house := store.CreateHouse("Demo House")
	userID := store.PutUser(domain.UserState{UserID: "demo-user", DisplayName: "Demo", HouseID: house})
	logger.Info("seeded in-memory store", zap.String("house_id", house), zap.String("user_id", userID))
}
