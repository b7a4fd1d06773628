package api

import (
	"github.com/Karunakar20/dino-ventures/internal/api/handler"
	"github.com/Karunakar20/dino-ventures/internal/api/middleware"
	"github.com/Karunakar20/dino-ventures/internal/api/spec"
	"github.com/Karunakar20/dino-ventures/internal/config"
	"github.com/Karunakar20/dino-ventures/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Directory is the read surface the router's handlers need beyond the
// wallet service: user lookup for auth and user/account provisioning.
type Directory interface {
	handler.UserReader
	handler.Provisioner
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     redis.Cmdable
	dir       Directory
	walletSvc *service.WalletService
	reconSvc  *service.ReconciliationService
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redisClient redis.Cmdable,
	dir Directory,
	walletSvc *service.WalletService,
	reconSvc *service.ReconciliationService,
) *Router {
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		dir:       dir,
		walletSvc: walletSvc,
		reconSvc:  reconSvc,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	authHandler := handler.NewAuthHandler(api.dir)
	userHandler := handler.NewUserHandler(api.dir)
	walletHandler := handler.NewWalletHandler(api.walletSvc)
	adminHandler := handler.NewAdminHandler(api.reconSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", userHandler.CreateUser)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/wallet/topup", walletHandler.TopUp)
		r.Post("/v1/wallet/spend", walletHandler.Spend)
		r.Get("/v1/wallet/{userID}/balance", walletHandler.GetBalance)
		r.Get("/v1/accounts/{id}/statement", walletHandler.GetStatement)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/v1/wallet/bonus", walletHandler.Bonus)
			r.Post("/v1/wallet/refund", walletHandler.Refund)
			r.Post("/v1/admin/reconciliation", adminHandler.RunReconciliation)
		})
	})

	return r
}
