package app

import (
	"github.com/autosem/autosem-backend/internal/adplatform"
	redisclient "github.com/autosem/autosem-backend/internal/clients/redis"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/services"
)

type Services struct {
	Audit      services.AuditService
	Notifier   services.EngineNotifier
	Executor   services.ActionExecutor
	Settings   services.SettingsService
	Campaigns  services.CampaignService
	Optimizer  services.OptimizerService
	PerfSync   services.PerformanceSyncService
	ABTests    services.ABTestService
	Automation services.AutomationService
}

func wireServices(
	log *logger.Logger,
	reposet Repos,
	registry *adplatform.Registry,
	bus redisclient.EventBus,
	lock redisclient.RunLock,
) Services {
	log.Info("Wiring services...")

	audit := services.NewAuditService(reposet.ActivityLog, log)
	notifier := services.NewEngineNotifier(bus, log)
	executor := services.NewActionExecutor(registry, audit, log)
	evaluator := services.NewRuleEvaluator(executor, log)
	guard := services.NewSafetyGuard(executor, audit, notifier, log)
	settings := services.NewSettingsService(reposet.Setting, log)
	campaigns := services.NewCampaignService(reposet.Campaign, executor, audit, log)
	optimizer := services.NewOptimizerService(reposet.Campaign, settings, evaluator, guard, audit, notifier, lock, log)
	perfSync := services.NewPerformanceSyncService(reposet.Campaign, registry, audit, notifier, log)
	abtests := services.NewABTestService(reposet.ABTest, registry, executor, audit, notifier, log)
	automation := services.NewAutomationService(optimizer, perfSync, abtests, audit, log)

	return Services{
		Audit:      audit,
		Notifier:   notifier,
		Executor:   executor,
		Settings:   settings,
		Campaigns:  campaigns,
		Optimizer:  optimizer,
		PerfSync:   perfSync,
		ABTests:    abtests,
		Automation: automation,
	}
}
