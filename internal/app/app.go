package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/api"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/db"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/ayo6706/wallet-ledger/internal/repository/memstore"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/ayo6706/wallet-ledger/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired services and the resources that must be closed on shutdown.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	router *api.Router
	worker *worker.DepositVerificationWorker
}

// Run bootstraps the HTTP server and deposit verification worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	stopWorker := a.worker.Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopWorker()
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping deposit verification worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	select {
	case <-a.worker.Done():
	case <-shutdownCtx.Done():
		logger.Warn("deposit verification worker did not stop in time")
	}

	logger.Info("shutdown complete")
	return nil
}

// New connects the configured backends and wires services, worker and router.
// Without DATABASE_URL the ledger runs on the in-memory store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	a := &App{cfg: cfg, logger: logger}

	var store service.QueryStore
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				a.Close()
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		store = repository.NewStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory store, balances are lost on restart")
		store = memstore.New()
	}

	var rdb redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		rdb = client
	}

	provider, err := newProvider(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	ledger := service.NewLedgerService(store)
	wallets := service.NewWalletService(store, cfg.WalletNumberMaxAttempts)
	deposits := service.NewDepositService(store, ledger, provider, service.DepositConfig{
		ProviderTimeout: cfg.ProviderTimeout,
		SettleTimeout:   cfg.SettleTimeout,
		VerifyGrace:     cfg.DepositVerifyGrace,
		Expiry:          cfg.DepositExpiry,
	})
	webhooks := service.NewWebhookService(ledger, cfg.PaystackSecretKey, cfg.WebhookSkipSignature, cfg.SettleTimeout)
	apiKeys := service.NewAPIKeyService(store)
	auth := service.NewAuthService(store, wallets, service.TokenConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.worker = worker.NewDepositVerificationWorker(deposits).
		WithInterval(cfg.DepositVerifyInterval).
		WithBatchSize(cfg.DepositVerifyBatchSize)

	a.router = api.NewRouter(api.Deps{
		Config:      cfg,
		Logger:      logger,
		DB:          a.pool,
		Redis:       rdb,
		Idempotency: idempotency.NewStore(rdb, a.pool, cfg.IdempotencyTTL),
		Ledger:      ledger,
		Deposits:    deposits,
		Wallets:     wallets,
		Webhooks:    webhooks,
		APIKeys:     apiKeys,
		Auth:        auth,
	})

	logger.Info("application wired",
		zap.String("provider", cfg.PaymentProvider),
		zap.Bool("postgres", a.pool != nil),
		zap.Bool("redis", a.redis != nil),
		zap.Bool("dev_login", cfg.AuthDevLogin),
	)
	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.router.Routes()
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func newProvider(cfg *config.Config) (gateway.Provider, error) {
	switch cfg.PaymentProvider {
	case config.ProviderMock:
		return gateway.NewMockProvider(), nil
	case config.ProviderPaystack:
		return gateway.NewPaystackClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaystackCallbackURL, cfg.ProviderTimeout), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
