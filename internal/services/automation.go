package services

import (
	"context"
	"sync"
	"time"

	"github.com/autosem/autosem-backend/internal/pkg/envutil"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/types"
)

// AutomationState is a snapshot of the engine's run state. It is owned by
// AutomationService and handed out by value; there is no package-global flag.
type AutomationState struct {
	Running          bool       `json:"running"`
	LastOptimization *time.Time `json:"last_optimization,omitempty"`
	LastSync         *time.Time `json:"last_sync,omitempty"`
	LastCycle        *time.Time `json:"last_cycle,omitempty"`
}

// CycleResult reports one full automation cycle. A failed step lands in
// Errors and the remaining steps still run.
type CycleResult struct {
	Sync      *SyncResult         `json:"sync,omitempty"`
	Optimize  *OptimizeResult     `json:"optimize,omitempty"`
	ABTests   *AutoOptimizeResult `json:"ab_tests,omitempty"`
	Errors    map[string]string   `json:"errors,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

type AutomationService interface {
	Start(ctx context.Context) AutomationState
	Stop(ctx context.Context) AutomationState
	Status() AutomationState
	Enabled() bool
	RunCycle(ctx context.Context) *CycleResult
}

type automationService struct {
	optimizer OptimizerService
	perfSync  PerformanceSyncService
	abtests   ABTestService
	audit     AuditService
	log       *logger.Logger

	mu    sync.RWMutex
	state AutomationState
}

func NewAutomationService(
	optimizer OptimizerService,
	perfSync PerformanceSyncService,
	abtests ABTestService,
	audit AuditService,
	baseLog *logger.Logger,
) AutomationService {
	return &automationService{
		optimizer: optimizer,
		perfSync:  perfSync,
		abtests:   abtests,
		audit:     audit,
		log:       baseLog.With("service", "AutomationService"),
		state: AutomationState{
			Running: envutil.Bool("AUTOMATION_AUTOSTART", true),
		},
	}
}

func (a *automationService) Start(ctx context.Context) AutomationState {
	a.mu.Lock()
	already := a.state.Running
	a.state.Running = true
	st := a.state
	a.mu.Unlock()

	if !already {
		a.audit.Record(ctx, AuditEntry{
			Action:     "automation_started",
			EntityType: "account",
			Details:    "scheduled optimization enabled",
			Severity:   types.SeverityInfo,
		})
		a.log.Info("automation started")
	}
	return st
}

func (a *automationService) Stop(ctx context.Context) AutomationState {
	a.mu.Lock()
	wasRunning := a.state.Running
	a.state.Running = false
	st := a.state
	a.mu.Unlock()

	if wasRunning {
		a.audit.Record(ctx, AuditEntry{
			Action:     "automation_stopped",
			EntityType: "account",
			Details:    "scheduled optimization disabled",
			Severity:   types.SeverityInfo,
		})
		a.log.Info("automation stopped")
	}
	return st
}

func (a *automationService) Status() AutomationState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Enabled gates the scheduled ticks; manual triggers bypass it.
func (a *automationService) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Running
}

// RunCycle executes performance sync, the optimization pass, and the A/B
// auto-optimize in order. Steps are isolated: a failure is recorded and the
// cycle moves on.
func (a *automationService) RunCycle(ctx context.Context) *CycleResult {
	res := &CycleResult{Timestamp: time.Now().UTC(), Errors: map[string]string{}}

	syncRes, err := a.perfSync.SyncAll(ctx)
	if err != nil {
		a.log.Error("cycle sync step failed", "error", err)
		res.Errors["sync"] = err.Error()
	} else {
		res.Sync = syncRes
		a.stamp(func(st *AutomationState, now *time.Time) { st.LastSync = now })
	}

	optRes, err := a.optimizer.OptimizeAll(ctx)
	if err != nil {
		a.log.Error("cycle optimize step failed", "error", err)
		res.Errors["optimize"] = err.Error()
	} else {
		res.Optimize = optRes
		a.stamp(func(st *AutomationState, now *time.Time) { st.LastOptimization = now })
	}

	abRes, err := a.abtests.AutoOptimize(ctx)
	if err != nil {
		a.log.Error("cycle ab test step failed", "error", err)
		res.Errors["ab_tests"] = err.Error()
	} else {
		res.ABTests = abRes
	}

	a.stamp(func(st *AutomationState, now *time.Time) { st.LastCycle = now })
	return res
}

func (a *automationService) stamp(set func(*AutomationState, *time.Time)) {
	now := time.Now().UTC()
	a.mu.Lock()
	set(&a.state, &now)
	a.mu.Unlock()
}
