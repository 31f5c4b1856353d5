package api

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/api/handler"
	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/api/problem"
	"github.com/ayo6706/wallet-ledger/internal/api/spec"
	"github.com/ayo6706/wallet-ledger/internal/config"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/idempotency"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Deps carries everything the HTTP surface needs. DB, Redis and Idempotency may be nil.
type Deps struct {
	Config      *config.Config
	Logger      *zap.Logger
	DB          *pgxpool.Pool
	Redis       redis.Cmdable
	Idempotency *idempotency.Store

	Ledger   *service.LedgerService
	Deposits *service.DepositService
	Wallets  *service.WalletService
	Webhooks *service.WebhookService
	APIKeys  *service.APIKeyService
	Auth     *service.AuthService
}

type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Router{deps: deps}
}

func (api *Router) Routes() chi.Router {
	d := api.deps
	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(d.Logger))
	r.Use(middleware.LoggingMiddleware(d.Logger))
	r.Use(middleware.MetricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusNotFound, problem.Type("route-not-found"), "", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, http.StatusMethodNotAllowed, problem.Type("method-not-allowed"), "", "method not allowed")
	})

	healthHandler := handler.NewHealthHandler(d.DB, d.Redis)
	walletHandler := handler.NewWalletHandler(d.Ledger, d.Deposits, d.Wallets)
	webhookHandler := handler.NewWebhookHandler(d.Webhooks)
	keyHandler := handler.NewKeyHandler(d.APIKeys)

	// Public Routes
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	if d.Config != nil && d.Config.AuthDevLogin && d.Auth != nil {
		r.Post("/v1/auth/login", handler.NewAuthHandler(d.Auth).Login)
	}
	r.Post("/v1/wallet/paystack/webhook", webhookHandler.HandlePaystackWebhook)
	r.Get("/v1/wallet/verify-payment", walletHandler.VerifyPayment)

	// JWT or API key
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.APIKeys))

		r.With(
			middleware.RequirePermission(domain.PermissionDeposit),
			middleware.IdempotencyMiddleware(d.Idempotency, d.Logger, false),
		).Post("/v1/wallet/deposit", walletHandler.Deposit)
		r.With(
			middleware.RequirePermission(domain.PermissionTransfer),
			middleware.IdempotencyMiddleware(d.Idempotency, d.Logger, true),
		).Post("/v1/wallet/transfer", walletHandler.Transfer)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(domain.PermissionRead))
			r.Get("/v1/wallet/balance", walletHandler.Balance)
			r.Get("/v1/wallet/transactions", walletHandler.Transactions)
			r.Get("/v1/wallet/deposit/{reference}/status", walletHandler.DepositStatus)
		})
	})

	// JWT only
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(nil))
		r.Post("/v1/keys", keyHandler.Create)
		r.Post("/v1/keys/rollover", keyHandler.Rollover)
		r.Get("/v1/keys", keyHandler.List)
		r.Delete("/v1/keys/{id}", keyHandler.Revoke)
	})

	return r
}
