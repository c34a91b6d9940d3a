package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/boddenberg/eel-admin-bfa/internal/config"
	"github.com/boddenberg/eel-admin-bfa/internal/handler"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/cache"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/client"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/observability"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/resilience"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/sqlstore"
	"github.com/boddenberg/eel-admin-bfa/internal/infra/supabase"
	"github.com/boddenberg/eel-admin-bfa/internal/port"
	"github.com/boddenberg/eel-admin-bfa/internal/service"

	"go.uber.org/zap"
)

// backend bundles the ports served by one data store.
type backend struct {
	records port.RecordSource
	credits port.CreditRequestStore
	wallet  port.WalletCreditor
	pinger  handler.Pinger
	close   func() error
}

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("wallet_backend", cfg.WalletBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("analytics_timezone", cfg.AnalyticsTimezone),
		zap.Duration("reconcile_interval", cfg.ReconcileInterval),
		zap.Duration("reconcile_after", cfg.ReconcileAfter),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "eel-admin-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	analyticsCache := cache.New[any](cfg.CacheTTL)
	defer analyticsCache.Close()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Store ---
	ctx := context.Background()
	be, err := openBackend(ctx, cfg, resilienceCfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Warn("store close failed", zap.Error(err))
		}
	}()

	// --- Wallet ---
	wallet := be.wallet
	if cfg.WalletBackend == config.WalletHTTP {
		logger.Info("using wallet API", zap.String("wallet_api_url", cfg.WalletAPIURL))
		wallet = client.NewWalletClient(
			cfg.WalletAPIURL,
			cfg.HTTPTimeout,
			resilience.NewCircuitBreaker("wallet-api", logger),
			resilienceCfg,
			logger,
		)
	}

	// --- Services ---
	analyticsSvc := service.NewAnalyticsService(
		be.records,
		analyticsCache,
		resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg.Location(),
		metrics,
		logger,
	)
	creditSvc := service.NewCreditService(be.credits, wallet, cfg.DefaultCurrency, resilienceCfg, metrics, logger)
	reconciler := service.NewReconciler(be.credits, wallet, cfg.ReconcileInterval, cfg.ReconcileAfter, metrics, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go reconciler.Run(workerCtx)

	// --- Router ---
	router := handler.NewRouter(analyticsSvc, creditSvc, be.pinger, metrics, []byte(cfg.JWTSecret), logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func openBackend(ctx context.Context, cfg *config.Config, rcfg resilience.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreBackend {
	case config.StoreSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		sb := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			rcfg,
			logger,
		)
		return &backend{records: sb, credits: sb, wallet: sb, pinger: sb, close: func() error { return nil }}, nil

	case config.StorePostgres:
		logger.Info("using Postgres as data backend")
		store, err := sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return sqlBackend(store), nil

	default:
		logger.Info("using SQLite as data backend", zap.String("path", cfg.SQLitePath))
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqlBackend(store), nil
	}
}

func sqlBackend(store *sqlstore.Store) *backend {
	return &backend{records: store, credits: store, wallet: store, pinger: store, close: store.Close}
}
