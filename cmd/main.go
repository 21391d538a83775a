package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/adplatform/googleads"
	"github.com/autosem/autosem-backend/internal/adplatform/meta"
	"github.com/autosem/autosem-backend/internal/adplatform/tiktok"
	redisclient "github.com/autosem/autosem-backend/internal/clients/redis"
	"github.com/autosem/autosem-backend/internal/db"
	"github.com/autosem/autosem-backend/internal/handlers"
	"github.com/autosem/autosem-backend/internal/observability"
	"github.com/autosem/autosem-backend/internal/pkg/envutil"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/scheduler"
	"github.com/autosem/autosem-backend/internal/server"
	"github.com/autosem/autosem-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Tracing
	if shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "autosem-backend",
		Environment: envutil.String("APP_ENV", "development"),
	}); shutdownOTel != nil {
		defer shutdownOTel(context.Background())
	}

	// Database
	dbService, err := db.NewService(log)
	if err != nil {
		log.Error("Could not init database", "error", err)
		os.Exit(1)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	gdb := dbService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	campaignRepo := repos.NewCampaignRepo(gdb, log)
	abTestRepo := repos.NewABTestRepo(gdb, log)
	settingRepo := repos.NewSettingRepo(gdb, log)
	activityRepo := repos.NewActivityLogRepo(gdb, log)
	tokenRepo := repos.NewPlatformTokenRepo(gdb, log)

	// Platform clients
	log.Info("Setting up platform clients from main...")
	registry := adplatform.NewRegistry()
	builders := []func(*logger.Logger, repos.PlatformTokenRepo) (adplatform.Client, error){
		meta.NewFromEnv,
		googleads.NewFromEnv,
		tiktok.NewFromEnv,
	}
	for _, build := range builders {
		client, err := build(log, tokenRepo)
		if errors.Is(err, errs.ErrNotConfigured) {
			log.Warn("Platform not configured; skipping", "error", err)
			continue
		}
		if err != nil {
			log.Error("Could not init platform client", "error", err)
			os.Exit(1)
		}
		if err := registry.Register(client); err != nil {
			log.Error("Could not register platform client", "error", err)
			os.Exit(1)
		}
		log.Info("Platform client registered", "platform", client.Platform())
	}
	if len(registry.Platforms()) == 0 {
		log.Warn("No platform clients configured; optimization will run against local data only")
	}

	// Redis (optional)
	var bus redisclient.EventBus
	if b, err := redisclient.NewEventBus(log); err != nil {
		log.Warn("Could not init redis event bus; engine events disabled", "error", err)
	} else {
		bus = b
		defer bus.Close()
	}
	var lock redisclient.RunLock
	if l, err := redisclient.NewRunLock(log); err != nil {
		log.Warn("Could not init redis run lock; overlapping passes excluded in-process only", "error", err)
	} else {
		lock = l
		defer lock.Close()
	}

	// Services
	log.Info("Setting up Services from main...")
	auditService := services.NewAuditService(activityRepo, log)
	notifier := services.NewEngineNotifier(bus, log)
	executor := services.NewActionExecutor(registry, auditService, log)
	evaluator := services.NewRuleEvaluator(executor, log)
	guard := services.NewSafetyGuard(executor, auditService, notifier, log)
	settingsService := services.NewSettingsService(settingRepo, log)
	campaignService := services.NewCampaignService(campaignRepo, executor, auditService, log)
	optimizerService := services.NewOptimizerService(campaignRepo, settingsService, evaluator, guard, auditService, notifier, lock, log)
	perfSyncService := services.NewPerformanceSyncService(campaignRepo, registry, auditService, notifier, log)
	abTestService := services.NewABTestService(abTestRepo, registry, executor, auditService, notifier, log)
	automationService := services.NewAutomationService(optimizerService, perfSyncService, abTestService, auditService, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	campaignHandler := handlers.NewCampaignHandler(campaignService)
	abTestHandler := handlers.NewABTestHandler(abTestService)
	automationHandler := handlers.NewAutomationHandler(automationService, optimizerService, perfSyncService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	dashboardHandler := handlers.NewDashboardHandler(optimizerService, auditService)

	// Scheduler
	log.Info("Setting up scheduler from main...")
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	sched := scheduler.New(automationService, perfSyncService, abTestService, log)
	sched.Start(schedCtx)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		CampaignHandler:   campaignHandler,
		ABTestHandler:     abTestHandler,
		AutomationHandler: automationHandler,
		SettingsHandler:   settingsHandler,
		DashboardHandler:  dashboardHandler,
	})

	port := envutil.String("PORT", "8080")
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
