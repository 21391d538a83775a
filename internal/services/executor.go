package services

import (
	"context"
	"fmt"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/types"
)

// Outcome reports whether a platform mutation took effect remotely. The local
// record is mutated by the caller regardless, so Executed=false means local
// and remote state disagree until the next performance sync.
type Outcome struct {
	Executed bool   `json:"executed"`
	Detail   string `json:"detail"`
}

// ActionExecutor is the single gateway for engine-driven platform mutations.
// It never returns an error: a remote failure is captured in the Outcome and
// the audit log, so one campaign's failure cannot abort a pass. Retries live
// in the platform clients, not here.
type ActionExecutor interface {
	PauseCampaign(ctx context.Context, c *types.Campaign) Outcome
	SetCampaignBudget(ctx context.Context, c *types.Campaign, dollars float64) Outcome
	PauseAdSet(ctx context.Context, platform types.Platform, adSetID string) Outcome
	SetAdSetBudget(ctx context.Context, platform types.Platform, adSetID string, cents int64) Outcome
}

type actionExecutor struct {
	registry *adplatform.Registry
	audit    AuditService
	log      *logger.Logger
}

func NewActionExecutor(registry *adplatform.Registry, audit AuditService, baseLog *logger.Logger) ActionExecutor {
	return &actionExecutor{
		registry: registry,
		audit:    audit,
		log:      baseLog.With("service", "ActionExecutor"),
	}
}

func (e *actionExecutor) PauseCampaign(ctx context.Context, c *types.Campaign) Outcome {
	if c.ExternalID == nil || *c.ExternalID == "" {
		out := Outcome{Executed: false, Detail: "campaign has no external id; paused locally only"}
		e.record(ctx, "pause_campaign", "campaign", c.ID.String(), out)
		return out
	}
	client, ok := e.registry.Get(c.Platform)
	if !ok {
		out := Outcome{Executed: false, Detail: fmt.Sprintf("no %s client registered", c.Platform)}
		e.record(ctx, "pause_campaign", "campaign", c.ID.String(), out)
		return out
	}

	out := Outcome{Executed: true, Detail: fmt.Sprintf("campaign paused on %s", c.Platform)}
	if err := client.PauseCampaign(ctx, *c.ExternalID); err != nil {
		e.log.Warn("remote pause failed", "campaign_id", c.ID, "platform", c.Platform, "error", err)
		out = Outcome{Executed: false, Detail: fmt.Sprintf("pause failed on %s: %v", c.Platform, err)}
	}
	e.record(ctx, "pause_campaign", "campaign", c.ID.String(), out)
	return out
}

func (e *actionExecutor) SetCampaignBudget(ctx context.Context, c *types.Campaign, dollars float64) Outcome {
	if c.ExternalID == nil || *c.ExternalID == "" {
		out := Outcome{Executed: false, Detail: "campaign has no external id; budget changed locally only"}
		e.record(ctx, "set_campaign_budget", "campaign", c.ID.String(), out)
		return out
	}
	client, ok := e.registry.Get(c.Platform)
	if !ok {
		out := Outcome{Executed: false, Detail: fmt.Sprintf("no %s client registered", c.Platform)}
		e.record(ctx, "set_campaign_budget", "campaign", c.ID.String(), out)
		return out
	}

	cents := money.DollarsToCents(dollars)
	out := Outcome{Executed: true, Detail: fmt.Sprintf("daily budget set to $%.2f on %s", dollars, c.Platform)}
	if err := client.SetCampaignBudget(ctx, *c.ExternalID, cents); err != nil {
		e.log.Warn("remote budget update failed", "campaign_id", c.ID, "platform", c.Platform, "error", err)
		out = Outcome{Executed: false, Detail: fmt.Sprintf("budget update failed on %s: %v", c.Platform, err)}
	}
	e.record(ctx, "set_campaign_budget", "campaign", c.ID.String(), out)
	return out
}

func (e *actionExecutor) PauseAdSet(ctx context.Context, platform types.Platform, adSetID string) Outcome {
	if adSetID == "" {
		out := Outcome{Executed: false, Detail: "missing ad set id"}
		e.record(ctx, "pause_adset", "ad_set", adSetID, out)
		return out
	}
	client, ok := e.registry.Get(platform)
	if !ok {
		out := Outcome{Executed: false, Detail: fmt.Sprintf("no %s client registered", platform)}
		e.record(ctx, "pause_adset", "ad_set", adSetID, out)
		return out
	}

	out := Outcome{Executed: true, Detail: fmt.Sprintf("ad set paused on %s", platform)}
	if err := client.PauseAdSet(ctx, adSetID); err != nil {
		e.log.Warn("remote ad set pause failed", "ad_set_id", adSetID, "platform", platform, "error", err)
		out = Outcome{Executed: false, Detail: fmt.Sprintf("ad set pause failed on %s: %v", platform, err)}
	}
	e.record(ctx, "pause_adset", "ad_set", adSetID, out)
	return out
}

func (e *actionExecutor) SetAdSetBudget(ctx context.Context, platform types.Platform, adSetID string, cents int64) Outcome {
	if adSetID == "" {
		out := Outcome{Executed: false, Detail: "missing ad set id"}
		e.record(ctx, "set_adset_budget", "ad_set", adSetID, out)
		return out
	}
	client, ok := e.registry.Get(platform)
	if !ok {
		out := Outcome{Executed: false, Detail: fmt.Sprintf("no %s client registered", platform)}
		e.record(ctx, "set_adset_budget", "ad_set", adSetID, out)
		return out
	}

	out := Outcome{Executed: true, Detail: fmt.Sprintf("ad set budget set to $%.2f on %s", money.CentsToDollars(cents), platform)}
	if err := client.SetAdSetBudget(ctx, adSetID, cents); err != nil {
		e.log.Warn("remote ad set budget update failed", "ad_set_id", adSetID, "platform", platform, "error", err)
		out = Outcome{Executed: false, Detail: fmt.Sprintf("ad set budget update failed on %s: %v", platform, err)}
	}
	e.record(ctx, "set_adset_budget", "ad_set", adSetID, out)
	return out
}

func (e *actionExecutor) record(ctx context.Context, action, entityType, entityID string, out Outcome) {
	sev := types.SeverityInfo
	if !out.Executed {
		sev = types.SeverityWarning
	}
	e.audit.Record(ctx, AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    out.Detail,
		Severity:   sev,
		Meta:       map[string]any{"executed": out.Executed},
	})
}
