package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/autosem/autosem-backend/internal/clients/redis"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

const (
	optimizerLockKey = "autosem:optimizer:lock"
	optimizerLockTTL = 10 * time.Minute
)

// OptimizeResult is the outcome of one optimization pass. Optimized counts
// campaigns whose evaluation completed; campaigns that failed contribute an
// error action record instead.
type OptimizeResult struct {
	Optimized int            `json:"optimized"`
	Actions   []ActionRecord `json:"actions"`
	Timestamp time.Time      `json:"timestamp"`
}

// AccountSummary is the dashboard rollup across all campaigns.
type AccountSummary struct {
	Campaigns        int     `json:"campaigns"`
	ActiveCampaigns  int     `json:"active_campaigns"`
	TotalSpend       float64 `json:"total_spend"`
	TotalRevenue     float64 `json:"total_revenue"`
	OverallROAS      float64 `json:"overall_roas"`
	TotalDailyBudget float64 `json:"total_daily_budget"`
}

type OptimizerService interface {
	OptimizeAll(ctx context.Context) (*OptimizeResult, error)
	Summary(ctx context.Context) (*AccountSummary, error)
}

type optimizerService struct {
	campaignRepo repos.CampaignRepo
	settings     SettingsService
	evaluator    *RuleEvaluator
	guard        *SafetyGuard
	audit        AuditService
	notifier     EngineNotifier
	lock         redisclient.RunLock
	mu           sync.Mutex
	log          *logger.Logger
}

// NewOptimizerService wires the optimization pass. lock may be nil, in which
// case overlapping passes are only excluded within this process.
func NewOptimizerService(
	campaignRepo repos.CampaignRepo,
	settings SettingsService,
	evaluator *RuleEvaluator,
	guard *SafetyGuard,
	audit AuditService,
	notifier EngineNotifier,
	lock redisclient.RunLock,
	baseLog *logger.Logger,
) OptimizerService {
	return &optimizerService{
		campaignRepo: campaignRepo,
		settings:     settings,
		evaluator:    evaluator,
		guard:        guard,
		audit:        audit,
		notifier:     notifier,
		lock:         lock,
		log:          baseLog.With("service", "OptimizerService"),
	}
}

// OptimizeAll runs one full pass: load the active set and a settings
// snapshot, evaluate every campaign in isolation, run the safety guard over
// the pass-start set, then persist whatever changed. A concurrent pass
// (scheduled tick overlapping a manual trigger) gets ErrPassInProgress.
func (s *optimizerService) OptimizeAll(ctx context.Context) (*OptimizeResult, error) {
	if !s.mu.TryLock() {
		return nil, errs.ErrPassInProgress
	}
	defer s.mu.Unlock()

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx, optimizerLockKey, optimizerLockTTL)
		if err != nil {
			s.log.Warn("run lock unavailable; relying on process-local guard", "error", err)
		} else if !ok {
			return nil, errs.ErrPassInProgress
		} else {
			defer func() {
				if err := s.lock.Release(context.Background(), optimizerLockKey); err != nil {
					s.log.Warn("run lock release failed", "error", err)
				}
			}()
		}
	}

	start := time.Now().UTC()

	campaigns, err := s.campaignRepo.ListActive(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load active campaigns: %w", err)
	}
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	type prior struct {
		status types.CampaignStatus
		budget float64
	}
	before := make(map[uuid.UUID]prior, len(campaigns))
	for _, c := range campaigns {
		before[c.ID] = prior{status: c.Status, budget: c.DailyBudget}
	}

	res := &OptimizeResult{Timestamp: start, Actions: []ActionRecord{}}
	for _, c := range campaigns {
		actions, evalErr := s.evaluateOne(ctx, c, settings)
		if evalErr != nil {
			s.log.Error("campaign evaluation failed", "campaign_id", c.ID, "error", evalErr)
			res.Actions = append(res.Actions, ActionRecord{
				CampaignID:   c.ID.String(),
				CampaignName: c.Name,
				Action:       ActionError,
				Reason:       evalErr.Error(),
			})
			continue
		}
		res.Optimized++
		res.Actions = append(res.Actions, actions...)
	}

	res.Actions = append(res.Actions, s.guard.Apply(ctx, campaigns, settings)...)

	for _, c := range campaigns {
		p := before[c.ID]
		fields := map[string]interface{}{}
		if c.Status != p.status {
			fields["status"] = c.Status
		}
		if c.DailyBudget != p.budget {
			fields["daily_budget"] = c.DailyBudget
		}
		if len(fields) == 0 {
			continue
		}
		if err := s.campaignRepo.UpdateFields(ctx, nil, c.ID, fields); err != nil {
			s.log.Error("campaign persist failed", "campaign_id", c.ID, "error", err)
		}
	}

	for _, a := range res.Actions {
		if isInformational(a.Action) {
			continue
		}
		s.notifier.ActionExecuted(ctx, a.CampaignID, a.Action, a.Executed)
	}

	s.audit.Record(ctx, AuditEntry{
		Action:     "optimization_pass",
		EntityType: "account",
		Details:    fmt.Sprintf("evaluated %d campaigns, %d actions", res.Optimized, len(res.Actions)),
		Severity:   types.SeverityInfo,
		Meta: map[string]any{
			"optimized":   res.Optimized,
			"actions":     len(res.Actions),
			"duration_ms": time.Since(start).Milliseconds(),
		},
	})
	s.notifier.PassCompleted(ctx, res.Optimized, len(res.Actions))
	s.log.Info("optimization pass complete",
		"campaigns", len(campaigns), "optimized", res.Optimized, "actions", len(res.Actions))

	return res, nil
}

// evaluateOne isolates one campaign: a panic inside the rule chain becomes an
// error for that campaign and the pass moves on.
func (s *optimizerService) evaluateOne(ctx context.Context, c *types.Campaign, settings types.OptimizerSettings) (actions []ActionRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	return s.evaluator.Evaluate(ctx, c, settings), nil
}

func (s *optimizerService) Summary(ctx context.Context) (*AccountSummary, error) {
	const page = 500

	sum := &AccountSummary{}
	for offset := 0; ; offset += page {
		batch, err := s.campaignRepo.List(ctx, nil, offset, page)
		if err != nil {
			return nil, fmt.Errorf("list campaigns: %w", err)
		}
		for _, c := range batch {
			sum.Campaigns++
			sum.TotalSpend += c.Spend
			sum.TotalRevenue += c.Revenue
			if c.Status == types.CampaignStatusActive {
				sum.ActiveCampaigns++
				sum.TotalDailyBudget += c.DailyBudget
			}
		}
		if len(batch) < page {
			break
		}
	}

	sum.TotalSpend = money.Round2(sum.TotalSpend)
	sum.TotalRevenue = money.Round2(sum.TotalRevenue)
	sum.TotalDailyBudget = money.Round2(sum.TotalDailyBudget)
	if sum.TotalSpend > 0 {
		sum.OverallROAS = money.Round2(sum.TotalRevenue / sum.TotalSpend)
	}
	return sum, nil
}

func isInformational(action string) bool {
	switch action {
	case ActionWaiting, ActionNoChange, ActionFlagLowCTR, ActionFlagHighCPC, ActionError:
		return true
	}
	return false
}
