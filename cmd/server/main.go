package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/ledgersync/internal/adapter/http"
	"github.com/iho/ledgersync/internal/adapter/http/handler"
	"github.com/iho/ledgersync/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/ledgersync/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/ledgersync/internal/adapter/repository/redis"
	sqliteRepo "github.com/iho/ledgersync/internal/adapter/repository/sqlite"
	"github.com/iho/ledgersync/internal/infrastructure/auth"
	"github.com/iho/ledgersync/internal/infrastructure/broadcast"
	"github.com/iho/ledgersync/internal/infrastructure/config"
	"github.com/iho/ledgersync/internal/infrastructure/connectivity"
	"github.com/iho/ledgersync/internal/infrastructure/idgen"
	"github.com/iho/ledgersync/internal/infrastructure/logger"
	"github.com/iho/ledgersync/internal/infrastructure/metrics"
	"github.com/iho/ledgersync/internal/infrastructure/postgres"
	"github.com/iho/ledgersync/internal/infrastructure/realtime"
	"github.com/iho/ledgersync/internal/infrastructure/redis"
	"github.com/iho/ledgersync/internal/infrastructure/retry"
	"github.com/iho/ledgersync/internal/infrastructure/sqlite"
	"github.com/iho/ledgersync/internal/infrastructure/syncloop"
	"github.com/iho/ledgersync/internal/usecase"
)

const (
	rateLimitCleanupInterval = time.Minute
	rateLimitMaxIdle         = 10 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "ledgersync"})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	idGen := idgen.NewULIDGenerator()

	// Local store: cache and sync queue
	localDB, err := sqlite.Open(ctx, cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer localDB.Close()
	log.Info().Str("path", cfg.LocalDBPath).Msg("opened local store")

	cache := sqliteRepo.NewLocalCache(localDB)
	queue := sqliteRepo.NewQueueRepository(localDB, idGen)

	// Remote store. The pool is lazy so the process starts offline when
	// PostgreSQL is down.
	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
		SkipPing:       true,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log); err != nil {
		log.Warn().Err(err).Msg("migrations not applied, remote store may be unreachable")
	}
	remote := postgresRepo.NewRemoteStore(pool)

	// Redis: cross-session broadcast and HTTP idempotency. Optional.
	var (
		transport   broadcast.Transport
		broadcaster *redisRepo.Broadcaster
		idempotency usecase.IdempotencyStore
		redisPinger handler.Pinger
	)
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, running without broadcast and idempotency")
	} else {
		defer redisClient.Close()
		broadcaster = redisRepo.NewBroadcaster(redisClient, sessionOrigin(idGen), logger.Component(log, "broadcaster"))
		transport = broadcaster
		idempotency = redisRepo.NewIdempotencyStore(redisClient)
		redisPinger = redisPing(redisClient)
		log.Info().Msg("connected to redis")
	}

	bus := broadcast.NewBus(transport, logger.Component(log, "bus"), m)

	probe := connectivity.NewProbe(connectivity.Config{
		Pinger:   pool,
		Interval: cfg.ConnectivityInterval,
		Logger:   logger.Component(log, "connectivity"),
		Metrics:  m,
	})

	executor := retry.NewExecutor(
		retry.WithMaxAttempts(cfg.RetryMaxAttempts),
		retry.WithBaseDelay(cfg.RetryBaseDelay),
		retry.WithLogger(logger.Component(log, "retry")),
		retry.WithMetrics(m),
	)

	// Use cases
	syncUC := usecase.NewSyncUseCase(usecase.SyncConfig{
		Queue:        queue,
		Cache:        cache,
		Remote:       remote,
		Replayer:     usecase.NewReplayer(remote, postgresRepo.NewRetrier(log)),
		Executor:     executor,
		Connectivity: probe,
		Broadcaster:  bus,
		Logger:       logger.Component(log, "sync"),
		Metrics:      m,
	})
	audit := usecase.NewAuditLogger(syncUC, idGen, logger.Component(log, "audit"), m)
	ledger := usecase.NewLedgerUseCase(cache, remote, syncUC, audit, idGen, m)
	entries := usecase.NewEntryUseCase(ledger)
	deductions := usecase.NewDeductionUseCase(ledger)
	settings := usecase.NewSettingsCache(ledger)

	unsubscribe := bus.Subscribe(settings.HandleEvent)
	defer unsubscribe()

	// Connectivity decides the initial mode before the first reads.
	probe.Check(ctx)
	if err := settings.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("settings not loaded")
	}
	defer settings.Close()

	loop := syncloop.New(syncloop.Config{
		Drainer:      syncUC,
		Connectivity: probe,
		Logger:       logger.Component(log, "syncloop"),
		Interval:     cfg.SyncInterval,
	})
	probe.OnChange(func(online bool) {
		if online {
			go loop.Trigger(ctx)
		}
	})

	go runBackground(ctx, log, "connectivity probe", probe.Start)
	go runBackground(ctx, log, "sync loop", loop.Start)

	if broadcaster != nil {
		if err := broadcaster.Listen(ctx, bus.Deliver); err != nil {
			log.Warn().Err(err).Msg("not receiving broadcasts from other sessions")
		}
	}

	// Realtime merge of remote changes into the cache
	merger := realtime.New(realtime.Config{
		Feed:        postgresRepo.NewChangeFeed(pool, logger.Component(log, "changefeed")),
		Cache:       cache,
		Pending:     syncUC,
		Broadcaster: bus,
		Logger:      logger.Component(log, "realtime"),
		Metrics:     m,
	})
	if err := merger.Start(ctx, cfg.SyncAccountID); err != nil {
		log.Warn().Err(err).Msg("realtime merge not started")
	}
	defer merger.Close()

	// HTTP
	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		verifier = auth.NewJWTManager(cfg.JWTSecret)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go cleanupLimiter(ctx, limiter)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AccountHandler:   handler.NewAccountHandler(ledger),
		EntryHandler:     handler.NewEntryHandler(entries),
		DeductionHandler: handler.NewDeductionHandler(deductions),
		SettingsHandler:  handler.NewSettingsHandler(settings),
		SyncHandler:      handler.NewSyncHandler(syncUC),
		AuditHandler:     handler.NewAuditHandler(audit),
		HealthHandler:    handler.NewHealthHandler(localPing(localDB), pool, redisPinger),
		TokenVerifier:    verifier,
		IdempotencyStore: idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      limiter,
		Metrics:          m,
		MetricsHandler:   promhttp.Handler(),
		Logger:           logger.Component(log, "http"),
	})

	server := newHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	loop.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Int("pending", pendingCount(shutdownCtx, queue)).Msg("server stopped")
	return nil
}

func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      h,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
}

// sessionOrigin names this process on the broadcast channel.
func sessionOrigin(idGen usecase.IDGenerator) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ledgersync"
	}
	return host + "-" + idGen.Generate()
}

func runBackground(ctx context.Context, log zerolog.Logger, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("component", name).Msg("background task stopped")
	}
}

func cleanupLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup(rateLimitMaxIdle)
		}
	}
}

func localPing(db *sql.DB) handler.Pinger {
	return handler.PingFunc(db.PingContext)
}

func redisPing(client *goredis.Client) handler.Pinger {
	return handler.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

func pendingCount(ctx context.Context, queue usecase.SyncQueue) int {
	n, err := queue.Count(ctx)
	if err != nil {
		return -1
	}
	return n
}
