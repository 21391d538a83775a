package services

import (
	"context"
	"fmt"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/types"
)

// Decision thresholds. Budgets are dollars.
const (
	minImpressionsForDecision = 100
	minClicksForDecision      = 10

	lowCTRThreshold   = 0.005
	highCTRThreshold  = 0.03
	lowConversionRate = 0.01

	budgetIncreaseFactor = 1.25
	budgetDecreaseFactor = 0.75
	maxDailyBudget       = 50.0
	minDailyBudget       = 3.0

	scaleWinnerIncrease  = 1.20
	scaleWinnerMaxBudget = 25.0
	scaleWinnerMaxCPC    = 0.20

	landingPageMaxCPCPause  = 1.00
	landingPageMaxCPCReduce = 0.50

	pauseUnderperformerMinSpend = 20.0
	pauseUnderperformerMaxROAS  = 0.5

	roasAdjustMinSpend   = 20.0
	roasDecreaseMinSpend = 50.0
	roasPauseMinSpend    = 100.0
	roasGrowthMultiple   = 1.5
)

// Action names as they appear in action records and the audit log.
const (
	ActionWaiting             = "waiting"
	ActionPauseUnderperformer = "pause_underperformer"
	ActionLandingPagePause    = "landing_page_pause"
	ActionLandingPageReduce   = "landing_page_reduce_budget"
	ActionScaleWinner         = "scale_winner"
	ActionIncreaseBudget      = "increase_budget"
	ActionDecreaseBudget      = "decrease_budget"
	ActionPauseNegativeROAS   = "pause_negative_roas"
	ActionFlagLowCTR          = "flag_low_ctr"
	ActionFlagHighCPC         = "flag_high_cpc"
	ActionNoChange            = "no_change"
	ActionError               = "error"
)

// ActionRecord is one decision made about one campaign during a pass.
// Executed is false when the matching platform call failed or never went out;
// the local record is mutated either way.
type ActionRecord struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name,omitempty"`
	Action       string  `json:"action"`
	Reason       string  `json:"reason"`
	Executed     bool    `json:"executed"`
	OldBudget    float64 `json:"old_budget,omitempty"`
	NewBudget    float64 `json:"new_budget,omitempty"`
}

// ruleState carries one campaign snapshot and its derived metrics through the
// ordered rule chain.
type ruleState struct {
	c        *types.Campaign
	settings types.OptimizerSettings

	ctr      float64
	convRate float64
	roas     float64
	cpc      float64

	actions []ActionRecord
}

func (st *ruleState) flag(action, reason string) {
	st.actions = append(st.actions, ActionRecord{
		CampaignID:   st.c.ID.String(),
		CampaignName: st.c.Name,
		Action:       action,
		Reason:       reason,
		Executed:     true,
	})
}

type rule struct {
	name  string
	apply func(ctx context.Context, st *ruleState) (terminal bool)
}

// RuleEvaluator runs the ordered decision rules over one campaign snapshot.
// The order is load-bearing: the first terminal rule that matches ends the
// evaluation for that campaign in that pass.
type RuleEvaluator struct {
	executor ActionExecutor
	log      *logger.Logger
	rules    []rule
}

func NewRuleEvaluator(executor ActionExecutor, baseLog *logger.Logger) *RuleEvaluator {
	re := &RuleEvaluator{
		executor: executor,
		log:      baseLog.With("service", "RuleEvaluator"),
	}
	re.rules = []rule{
		{name: "waiting", apply: re.ruleWaiting},
		{name: "pause_underperformer", apply: re.rulePauseUnderperformer},
		{name: "landing_page_problem", apply: re.ruleLandingPage},
		{name: "scale_winner", apply: re.ruleScaleWinner},
		{name: "roas_budget_adjustment", apply: re.ruleROASBudget},
		{name: "informational_flags", apply: re.ruleFlags},
		{name: "no_change", apply: re.ruleNoChange},
	}
	return re
}

// Evaluate mutates c in place (status, daily budget) and returns the decision
// records. Remote effects go through the executor; a remote failure shows up
// as Executed=false on the record, never as an error.
func (re *RuleEvaluator) Evaluate(ctx context.Context, c *types.Campaign, settings types.OptimizerSettings) []ActionRecord {
	st := &ruleState{
		c:        c,
		settings: settings,
		ctr:      c.CTR(),
		convRate: c.ConversionRate(),
		roas:     c.CurrentROAS(),
		cpc:      c.CPC(),
	}
	for _, r := range re.rules {
		if r.apply(ctx, st) {
			re.log.Debug("rule chain stopped", "campaign_id", c.ID, "rule", r.name)
			break
		}
	}
	return st.actions
}

// Platform stats are unreliable below a minimum sample; decide nothing yet.
func (re *RuleEvaluator) ruleWaiting(_ context.Context, st *ruleState) bool {
	if st.c.Impressions >= minImpressionsForDecision {
		return false
	}
	st.flag(ActionWaiting, fmt.Sprintf("only %d impressions; need %d before optimizing", st.c.Impressions, minImpressionsForDecision))
	return true
}

func (re *RuleEvaluator) rulePauseUnderperformer(ctx context.Context, st *ruleState) bool {
	// ROAS pauses are disabled while no revenue threshold is configured.
	if st.settings.AwarenessMode() {
		return false
	}
	if st.c.Spend >= pauseUnderperformerMinSpend && st.roas < pauseUnderperformerMaxROAS {
		re.pause(ctx, st, ActionPauseUnderperformer,
			fmt.Sprintf("spent $%.2f with roas %.2f (limit %.2f)", st.c.Spend, st.roas, pauseUnderperformerMaxROAS))
		return true
	}
	return false
}

// Ads attract clicks but the destination converts nobody.
func (re *RuleEvaluator) ruleLandingPage(ctx context.Context, st *ruleState) bool {
	if st.c.Clicks < minClicksForDecision || st.ctr <= highCTRThreshold || st.convRate >= lowConversionRate {
		return false
	}
	if st.cpc > landingPageMaxCPCPause {
		re.pause(ctx, st, ActionLandingPagePause,
			fmt.Sprintf("ctr %.1f%% but conversion %.2f%% at $%.2f cpc", st.ctr*100, st.convRate*100, st.cpc))
		return true
	}
	if st.cpc > landingPageMaxCPCReduce {
		newBudget := clampBudget(money.Round2(st.c.DailyBudget * budgetDecreaseFactor))
		re.setBudget(ctx, st, ActionLandingPageReduce,
			fmt.Sprintf("ctr %.1f%% but conversion %.2f%%; cutting budget while the page is fixed", st.ctr*100, st.convRate*100),
			newBudget)
	}
	return false
}

func (re *RuleEvaluator) ruleScaleWinner(ctx context.Context, st *ruleState) bool {
	if st.ctr > highCTRThreshold && st.cpc < scaleWinnerMaxCPC && st.c.Clicks >= minClicksForDecision {
		newBudget := money.Round2(st.c.DailyBudget * scaleWinnerIncrease)
		if newBudget > scaleWinnerMaxBudget {
			newBudget = scaleWinnerMaxBudget
		}
		// Only ever scale up. At or above the cap there is nothing to do.
		if newBudget > st.c.DailyBudget {
			re.setBudget(ctx, st, ActionScaleWinner,
				fmt.Sprintf("ctr %.1f%% at $%.2f cpc", st.ctr*100, st.cpc), newBudget)
		}
	}
	return false
}

func (re *RuleEvaluator) ruleROASBudget(ctx context.Context, st *ruleState) bool {
	if st.c.Spend <= roasAdjustMinSpend {
		return false
	}
	switch {
	case st.roas >= roasGrowthMultiple*st.settings.MinROASThreshold:
		newBudget := clampBudget(money.Round2(st.c.DailyBudget * budgetIncreaseFactor))
		if newBudget > st.c.DailyBudget {
			re.setBudget(ctx, st, ActionIncreaseBudget,
				fmt.Sprintf("roas %.2f at %.1fx the %.2f threshold", st.roas, roasGrowthMultiple, st.settings.MinROASThreshold),
				newBudget)
		}
	case st.roas < st.settings.MinROASThreshold && st.c.Spend > roasDecreaseMinSpend:
		newBudget := clampBudget(money.Round2(st.c.DailyBudget * budgetDecreaseFactor))
		re.setBudget(ctx, st, ActionDecreaseBudget,
			fmt.Sprintf("roas %.2f below the %.2f threshold after $%.2f spend", st.roas, st.settings.MinROASThreshold, st.c.Spend),
			newBudget)
	case !st.settings.AwarenessMode() && st.roas < pauseUnderperformerMaxROAS && st.c.Spend > roasPauseMinSpend:
		// Stops this rule only; informational flags still run.
		re.pause(ctx, st, ActionPauseNegativeROAS,
			fmt.Sprintf("roas %.2f after $%.2f spend", st.roas, st.c.Spend))
	}
	return false
}

// Advisory only: these records never touch status or budget.
func (re *RuleEvaluator) ruleFlags(_ context.Context, st *ruleState) bool {
	if st.c.Clicks >= minClicksForDecision && st.ctr < lowCTRThreshold {
		st.flag(ActionFlagLowCTR,
			fmt.Sprintf("ctr %.2f%% below %.1f%%; creative refresh suggested", st.ctr*100, lowCTRThreshold*100))
	}
	if st.c.DailyBudget > 0 && st.cpc > st.c.DailyBudget*0.5 {
		st.flag(ActionFlagHighCPC,
			fmt.Sprintf("cpc $%.2f exceeds half the $%.2f daily budget; bid review suggested", st.cpc, st.c.DailyBudget))
	}
	return false
}

func (re *RuleEvaluator) ruleNoChange(_ context.Context, st *ruleState) bool {
	if len(st.actions) == 0 {
		st.flag(ActionNoChange, fmt.Sprintf("roas %.2f, ctr %.2f%%; within thresholds", st.roas, st.ctr*100))
	}
	return false
}

func (re *RuleEvaluator) pause(ctx context.Context, st *ruleState, action, reason string) {
	out := re.executor.PauseCampaign(ctx, st.c)
	st.c.Status = types.CampaignStatusPaused
	st.actions = append(st.actions, ActionRecord{
		CampaignID:   st.c.ID.String(),
		CampaignName: st.c.Name,
		Action:       action,
		Reason:       reason,
		Executed:     out.Executed,
	})
}

func (re *RuleEvaluator) setBudget(ctx context.Context, st *ruleState, action, reason string, newBudget float64) {
	old := st.c.DailyBudget
	out := re.executor.SetCampaignBudget(ctx, st.c, newBudget)
	st.c.DailyBudget = newBudget
	st.actions = append(st.actions, ActionRecord{
		CampaignID:   st.c.ID.String(),
		CampaignName: st.c.Name,
		Action:       action,
		Reason:       reason,
		Executed:     out.Executed,
		OldBudget:    old,
		NewBudget:    newBudget,
	})
}

func clampBudget(v float64) float64 {
	if v < minDailyBudget {
		return minDailyBudget
	}
	if v > maxDailyBudget {
		return maxDailyBudget
	}
	return v
}
