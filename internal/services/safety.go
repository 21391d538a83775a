package services

import (
	"context"
	"fmt"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/types"
)

const (
	ActionGlobalBudgetScale = "global_budget_scale"
	ActionEmergencyPause    = "emergency_pause_all"
)

// SafetyGuard applies the account-wide limits after all per-campaign rules.
// It is a circuit breaker, not a refinement: the emergency pause can stop
// campaigns the per-campaign rules judged healthy.
type SafetyGuard struct {
	executor ActionExecutor
	audit    AuditService
	notifier EngineNotifier
	log      *logger.Logger
}

func NewSafetyGuard(executor ActionExecutor, audit AuditService, notifier EngineNotifier, baseLog *logger.Logger) *SafetyGuard {
	return &SafetyGuard{
		executor: executor,
		audit:    audit,
		notifier: notifier,
		log:      baseLog.With("service", "SafetyGuard"),
	}
}

// Apply runs both checks over the pass-start campaign set. Campaigns paused
// earlier in the same pass keep their stale budget and are excluded from the
// budget aggregate; spend and revenue are historical facts and sum over the
// whole set.
func (g *SafetyGuard) Apply(ctx context.Context, campaigns []*types.Campaign, settings types.OptimizerSettings) []ActionRecord {
	var actions []ActionRecord
	actions = append(actions, g.scaleBudgets(ctx, campaigns, settings)...)
	actions = append(actions, g.emergencyPause(ctx, campaigns, settings)...)
	return actions
}

func (g *SafetyGuard) scaleBudgets(ctx context.Context, campaigns []*types.Campaign, settings types.OptimizerSettings) []ActionRecord {
	var total float64
	var active []*types.Campaign
	for _, c := range campaigns {
		if c.Status != types.CampaignStatusActive {
			continue
		}
		active = append(active, c)
		total += c.DailyBudget
	}
	if total <= settings.DailySpendLimit || total <= 0 {
		return nil
	}

	scale := settings.DailySpendLimit / total
	reason := fmt.Sprintf("account budgets $%.2f over the $%.2f daily limit; scaling by %.3f", total, settings.DailySpendLimit, scale)
	g.log.Warn("daily budget limit exceeded", "total", total, "limit", settings.DailySpendLimit, "scale", scale)

	actions := make([]ActionRecord, 0, len(active))
	for _, c := range active {
		// No floor here: the account limit wins over the per-campaign minimum.
		newBudget := money.Round2(c.DailyBudget * scale)
		old := c.DailyBudget
		out := g.executor.SetCampaignBudget(ctx, c, newBudget)
		c.DailyBudget = newBudget
		actions = append(actions, ActionRecord{
			CampaignID:   c.ID.String(),
			CampaignName: c.Name,
			Action:       ActionGlobalBudgetScale,
			Reason:       reason,
			Executed:     out.Executed,
			OldBudget:    old,
			NewBudget:    newBudget,
		})
	}

	g.audit.Record(ctx, AuditEntry{
		Action:     ActionGlobalBudgetScale,
		EntityType: "account",
		Details:    reason,
		Severity:   types.SeverityWarning,
		Meta:       map[string]any{"total_budget": money.Round2(total), "scale": scale, "campaigns": len(active)},
	})
	g.notifier.SafetyTriggered(ctx, ActionGlobalBudgetScale, reason)
	return actions
}

func (g *SafetyGuard) emergencyPause(ctx context.Context, campaigns []*types.Campaign, settings types.OptimizerSettings) []ActionRecord {
	var spend, revenue float64
	for _, c := range campaigns {
		spend += c.Spend
		revenue += c.Revenue
	}
	loss := spend - revenue
	if loss < settings.EmergencyPauseLoss {
		return nil
	}

	detail := fmt.Sprintf("net loss $%.2f reached the $%.2f emergency limit; pausing all active campaigns", loss, settings.EmergencyPauseLoss)
	g.log.Error("emergency pause triggered", "net_loss", loss, "limit", settings.EmergencyPauseLoss)

	var actions []ActionRecord
	for _, c := range campaigns {
		if c.Status != types.CampaignStatusActive {
			continue
		}
		out := g.executor.PauseCampaign(ctx, c)
		c.Status = types.CampaignStatusPaused
		actions = append(actions, ActionRecord{
			CampaignID:   c.ID.String(),
			CampaignName: c.Name,
			Action:       ActionEmergencyPause,
			Reason:       detail,
			Executed:     out.Executed,
		})
	}

	g.audit.Record(ctx, AuditEntry{
		Action:     ActionEmergencyPause,
		EntityType: "account",
		Details:    detail,
		Severity:   types.SeverityCritical,
		Meta:       map[string]any{"net_loss": money.Round2(loss), "paused": len(actions)},
	})
	g.notifier.SafetyTriggered(ctx, ActionEmergencyPause, detail)
	return actions
}
