package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/tradepilot/pilot_service/docs"
	"github.com/tradepilot/pilot_service/internal/api/handlers"
	"github.com/tradepilot/pilot_service/internal/api/middleware"
	"github.com/tradepilot/pilot_service/internal/infrastructure/di"
	"github.com/tradepilot/pilot_service/pkg/idempotency"
	"github.com/tradepilot/pilot_service/pkg/metrics"
	"github.com/tradepilot/pilot_service/pkg/tracing"
)

// TickWorkerID names the HTTP-triggered scheduler in job leases
const TickWorkerID = "http-tick"

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	router := gin.New()
	cfg := container.Config

	// Global middleware - order matters
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.RequestID())
	router.Use(metrics.MetricsMiddleware())
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.Logger(container.Logger))
	router.Use(middleware.Recovery(container.Logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	checks := make(map[string]handlers.HealthCheck)
	for name, check := range container.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handlers.NewHealthHandler(checks, container.ZapLog, container.Version)
	policyHandler := handlers.NewPolicyHandler(container.PolicyService, container.Logger)
	proposalHandler := handlers.NewProposalHandler(container.ProposalService, container.ExecutionCoordinator, container.Logger)
	scanHandler := handlers.NewScanHandler(container.ScanScheduler, container.ScanScheduler, TickWorkerID, container.Logger)
	tradingHandler := handlers.NewTradingHandler(container.TradingService, container.Logger)

	// Health checks (no auth required)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Readiness)
	router.GET("/live", healthHandler.Liveness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation (development only)
	if cfg.Environment != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Scheduler trigger, authenticated by shared secret instead of a user token
	internal := router.Group("/internal")
	internal.Use(middleware.SchedulerSecret(cfg.Scheduler.SharedSecret, container.Logger))
	{
		internal.POST("/scheduler/tick", scanHandler.SchedulerTick)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Authentication(cfg.JWT.Secret, container.Logger))
	if container.RateLimiter != nil {
		v1.Use(middleware.UserRateLimit(container.RateLimiter, container.Logger))
	}
	v1.Use(idempotency.Middleware(container.IdempotencyRepo, container.ZapLog))
	{
		policies := v1.Group("/policies")
		{
			policies.GET("", policyHandler.ListPolicies)
			policies.GET("/active", policyHandler.GetActivePolicy)
			policies.GET("/presets", policyHandler.ListPresets)
			policies.POST("", policyHandler.CreatePolicy)
			policies.PUT("/:id", policyHandler.UpdatePolicy)
			policies.POST("/:id/activate", policyHandler.ActivatePolicy)
			policies.POST("/:id/deactivate", policyHandler.DeactivatePolicy)
		}

		proposals := v1.Group("/proposals")
		{
			proposals.GET("", proposalHandler.ListProposals)
			proposals.GET("/:id", proposalHandler.GetProposal)
			proposals.POST("/:id/accept", proposalHandler.AcceptProposal)
			proposals.POST("/:id/modify", proposalHandler.ModifyProposal)
			proposals.POST("/:id/decline", proposalHandler.DeclineProposal)
			proposals.POST("/:id/execute", proposalHandler.ExecuteProposal)
		}

		scan := v1.Group("/scan")
		{
			scan.GET("", scanHandler.GetScanJob)
			scan.POST("/pause", scanHandler.PauseScan)
			scan.POST("/resume", scanHandler.ResumeScan)
			scan.POST("/force", scanHandler.ForceScan)
		}

		trading := v1.Group("/trading")
		{
			trading.GET("/enabled", tradingHandler.GetTradingEnabled)
			trading.PUT("/enabled", tradingHandler.SetTradingEnabled)
		}
	}

	return router
}
