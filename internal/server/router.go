package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/autosem/autosem-backend/internal/handlers"
	"github.com/autosem/autosem-backend/internal/middleware"
)

type RouterConfig struct {
	CampaignHandler   *handlers.CampaignHandler
	ABTestHandler     *handlers.ABTestHandler
	AutomationHandler *handlers.AutomationHandler
	SettingsHandler   *handlers.SettingsHandler
	DashboardHandler  *handlers.DashboardHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))
	router.Use(otelgin.Middleware("autosem-backend"))
	router.Use(middleware.AttachTraceContext())

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api/v1")
	{
		// Campaigns
		api.GET("/campaigns", cfg.CampaignHandler.List)
		api.GET("/campaigns/active", cfg.CampaignHandler.ListActive)
		api.POST("/campaigns", cfg.CampaignHandler.Create)
		api.DELETE("/campaigns/cleanup", cfg.CampaignHandler.Cleanup)
		api.GET("/campaigns/:id", cfg.CampaignHandler.Get)
		api.PUT("/campaigns/:id", cfg.CampaignHandler.Update)
		api.POST("/campaigns/:id/pause", cfg.CampaignHandler.Pause)
		api.DELETE("/campaigns/:id", cfg.CampaignHandler.Delete)

		// A/B tests
		api.POST("/abtests", cfg.ABTestHandler.Create)
		api.GET("/abtests/results", cfg.ABTestHandler.Results)
		api.POST("/abtests/auto-optimize", cfg.ABTestHandler.AutoOptimize)

		// Automation
		api.GET("/automation/status", cfg.AutomationHandler.Status)
		api.POST("/automation/start", cfg.AutomationHandler.Start)
		api.POST("/automation/stop", cfg.AutomationHandler.Stop)
		api.POST("/automation/run-cycle", cfg.AutomationHandler.RunCycle)
		api.POST("/automation/optimize", cfg.AutomationHandler.Optimize)
		api.POST("/automation/sync-performance", cfg.AutomationHandler.SyncPerformance)

		// Settings
		api.GET("/settings", cfg.SettingsHandler.Get)
		api.PUT("/settings", cfg.SettingsHandler.Update)

		// Dashboard
		api.GET("/dashboard/summary", cfg.DashboardHandler.Summary)
		api.GET("/dashboard/activity", cfg.DashboardHandler.Activity)
	}

	return router
}
