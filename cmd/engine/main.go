// Package main is the entry point for the alcohol-check workflow engine.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/TTS1976/alcohol-check-engine/internal/authority"
	"github.com/TTS1976/alcohol-check-engine/internal/config"
	"github.com/TTS1976/alcohol-check-engine/internal/engine"
	"github.com/TTS1976/alcohol-check-engine/internal/observability"
	"github.com/TTS1976/alcohol-check-engine/internal/orgdir"
	"github.com/TTS1976/alcohol-check-engine/internal/records"
	"github.com/TTS1976/alcohol-check-engine/internal/transport"
	"github.com/TTS1976/alcohol-check-engine/internal/trip"
	"github.com/TTS1976/alcohol-check-engine/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "alcohol-check-engine", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Record store and the bounded aggregator on top of it.
	store, storeCloser, err := buildRecordStore(ctx, cfg.Records, logger)
	if err != nil {
		logger.Error("record store initialization failed", zap.Error(err))
		return 1
	}
	agg := records.NewAggregator(store, records.Options{
		PageSize:      cfg.Records.PageSize,
		MaxPages:      cfg.Records.MaxPages,
		MaxItems:      cfg.Records.MaxItems,
		RecencyWindow: cfg.Records.RecencyWindow,
		RetryDelay:    cfg.Records.RetryDelay,
	}, logger)

	// Trip day counting in the business timezone. Validate() has already
	// vetted the timezone name.
	loc, err := time.LoadLocation(cfg.Trip.Timezone)
	if err != nil {
		logger.Error("timezone load failed", zap.Error(err))
		return 1
	}
	calc := trip.NewCalculator(agg, loc, logger)

	// Org-hierarchy snapshot.
	dir, err := orgdir.LoadSnapshot(cfg.Orgdir.SnapshotFile)
	if err != nil {
		logger.Error("org snapshot load failed", zap.Error(err))
		return 1
	}
	logger.Info("org snapshot loaded",
		zap.String("file", cfg.Orgdir.SnapshotFile),
		zap.String("checksum", dir.Checksum),
	)

	// Approval authority with the eligible-confirmer cache.
	cache, cacheChecker, cacheCloser := buildConfirmerCache(cfg.Authority.Cache, logger)
	auth := authority.NewResolver(dir, cache, cfg.Authority.Cache.TTL, logger)
	auth.SetCacheObserver(metrics.RecordConfirmerCacheHit, metrics.RecordConfirmerCacheMiss)

	eng := engine.New(agg, workflow.NewResolver(agg, calc, logger), auth, dir, logger)

	// HTTP surface.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)
	readiness := observability.ReadinessChecks{
		RecordStore:    store,
		OrgSnapshot:    dir,
		ConfirmerCache: cacheChecker,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       eng,
		Metrics:      metrics,
		Readiness:    readiness,
		Authenticate: transport.NewAuthChain(cfg.Identity, jwks, dir),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("records_driver", cfg.Records.Driver),
		zap.String("timezone", cfg.Trip.Timezone),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}
	if cacheCloser != nil {
		cacheCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// storeWithHealth is what the transport readiness endpoint needs from a
// record store.
type storeWithHealth interface {
	records.Store
	observability.HealthChecker
}

// buildRecordStore creates the submission record store based on config.
func buildRecordStore(ctx context.Context, cfg config.RecordsConfig, logger *zap.Logger) (storeWithHealth, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory record store")
		return records.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("record store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("record store: parse DSN: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("record store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("record store: ping: %w", err)
		}
		return records.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported record store driver: %q", cfg.Driver)
	}
}

// buildConfirmerCache creates the eligible-confirmer cache based on config.
// A misconfigured redis address degrades to the in-memory cache rather than
// failing startup; caching is an optimization, not a dependency.
func buildConfirmerCache(cfg config.AuthorityCacheConfig, logger *zap.Logger) (authority.ConfirmerCache, observability.HealthChecker, func()) {
	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			logger.Warn("confirmer cache: redis address not configured, using in-memory cache",
				zap.String("addr_env", cfg.AddrEnv))
			return authority.NewMemoryConfirmerCache(), nil, nil
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		logger.Info("using redis confirmer cache", zap.String("addr", addr))
		cache := authority.NewRedisConfirmerCache(client)
		return cache, cache, func() { client.Close() }
	default:
		logger.Info("using in-memory confirmer cache")
		return authority.NewMemoryConfirmerCache(), nil, nil
	}
}
