package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spindle/cmd/server/config"
	"spindle/internal/adapters/httpapi"
	"spindle/internal/adapters/ws"
	"spindle/internal/observability"
	"spindle/internal/spin"

	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	logger, err := buildLogger()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, logger *zap.Logger) error {
	redisCfg, err := config.LoadRedis()
	if err != nil {
		return err
	}
	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	policies, err := spin.LoadPoliciesFromEnv()
	if err != nil {
		return err
	}

	cache, cacheCleanup, err := buildBalanceCache(ctx, redisCfg, logger)
	if err != nil {
		return err
	}
	defer cacheCleanup()
	if cache != nil {
		logger.Info("balance cache enabled", zap.Duration("ttl", redisCfg.BalanceTTL))
	}

	metrics := observability.NewMetrics()

	runtime, cleanup := spin.Build(ctx, spin.BuildConfig{
		PostgresDSN:     os.Getenv("DATABASE_URL"),
		BalanceCache:    cache,
		BalanceCacheTTL: redisCfg.BalanceTTL,
		Policies:        policies,
		Metrics:         metrics,
		Logger:          logger,
	})
	defer cleanup()

	// Sagas interrupted by the previous process finish before and alongside
	// new traffic; every step is idempotent so the overlap is safe.
	go func() {
		if err := runtime.Recoverer.Resume(ctx); err != nil {
			logger.Warn("saga recovery incomplete", zap.Error(err))
		}
	}()

	limiter := spin.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst, metrics.RateLimitWait)

	hub := ws.NewHub(metrics)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewServer(runtime.Coordinator, runtime.Ledger, limiter, metrics, logger).Routes())
	mux.Handle("/ws", ws.NewHandler(hub, runtime.Coordinator, runtime.Ledger, logger))

	apiSrv := &http.Server{
		Addr:              httpCfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	obsSrv := &http.Server{
		Addr:    config.LoadObservability().Addr,
		Handler: metricsMux(metrics),
	}

	healthEP, err := startHealthEndpoint(config.LoadGRPC().Addr, limiter, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("game api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics listening", zap.String("addr", obsSrv.Addr))
		if err := obsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		healthEP.shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := apiSrv.Shutdown(shutdownCtx)
		_ = obsSrv.Shutdown(shutdownCtx)
		return err
	case err := <-errCh:
		return err
	}
}

func metricsMux(metrics *observability.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
