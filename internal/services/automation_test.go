package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/types"
)

func TestAutomationService_AutostartFollowsEnv(t *testing.T) {
	t.Setenv("AUTOMATION_AUTOSTART", "false")
	svc := NewAutomationService(&fakeOptimizerSvc{}, &fakeSyncSvc{}, &fakeABTestSvc{}, &fakeAudit{}, testLogger())

	if svc.Status().Running {
		t.Fatalf("expected stopped state")
	}

	t.Setenv("AUTOMATION_AUTOSTART", "true")
	svc = NewAutomationService(&fakeOptimizerSvc{}, &fakeSyncSvc{}, &fakeABTestSvc{}, &fakeAudit{}, testLogger())
	if !svc.Status().Running {
		t.Fatalf("expected running state by default")
	}
}

func TestAutomationService_StartStopAuditOnlyOnTransition(t *testing.T) {
	t.Setenv("AUTOMATION_AUTOSTART", "false")
	audit := &fakeAudit{}
	svc := NewAutomationService(&fakeOptimizerSvc{}, &fakeSyncSvc{}, &fakeABTestSvc{}, audit, testLogger())

	if st := svc.Start(context.Background()); !st.Running {
		t.Fatalf("expected running after Start")
	}
	svc.Start(context.Background()) // no-op

	var started, stopped int
	for _, e := range audit.entries {
		switch e.Action {
		case "automation_started":
			started++
		case "automation_stopped":
			stopped++
		}
	}
	if started != 1 || stopped != 0 {
		t.Fatalf("unexpected audits after start: started=%d stopped=%d", started, stopped)
	}

	if st := svc.Stop(context.Background()); st.Running {
		t.Fatalf("expected stopped after Stop")
	}
	svc.Stop(context.Background()) // no-op

	started, stopped = 0, 0
	for _, e := range audit.entries {
		switch e.Action {
		case "automation_started":
			started++
		case "automation_stopped":
			stopped++
		}
	}
	if started != 1 || stopped != 1 {
		t.Fatalf("unexpected audits after stop: started=%d stopped=%d", started, stopped)
	}
}

func TestAutomationService_EnabledTracksRunning(t *testing.T) {
	t.Setenv("AUTOMATION_AUTOSTART", "true")
	svc := NewAutomationService(&fakeOptimizerSvc{}, &fakeSyncSvc{}, &fakeABTestSvc{}, &fakeAudit{}, testLogger())

	if !svc.Enabled() {
		t.Fatalf("expected enabled")
	}
	svc.Stop(context.Background())
	if svc.Enabled() {
		t.Fatalf("expected disabled after Stop")
	}
}

func TestAutomationService_RunCycleRunsAllSteps(t *testing.T) {
	t.Setenv("AUTOMATION_AUTOSTART", "true")
	opt := &fakeOptimizerSvc{}
	syn := &fakeSyncSvc{}
	ab := &fakeABTestSvc{}
	svc := NewAutomationService(opt, syn, ab, &fakeAudit{}, testLogger())

	res := svc.RunCycle(context.Background())

	if syn.calls != 1 || opt.calls != 1 || ab.calls != 1 {
		t.Fatalf("steps not all run: sync=%d optimize=%d abtests=%d", syn.calls, opt.calls, ab.calls)
	}
	if res.Sync == nil || res.Optimize == nil || res.ABTests == nil {
		t.Fatalf("step results missing: %+v", res)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %#v", res.Errors)
	}

	st := svc.Status()
	if st.LastSync == nil || st.LastOptimization == nil || st.LastCycle == nil {
		t.Fatalf("timestamps not stamped: %+v", st)
	}
}

func TestAutomationService_RunCycleIsolatesFailingStep(t *testing.T) {
	t.Setenv("AUTOMATION_AUTOSTART", "true")
	opt := &fakeOptimizerSvc{err: errors.New("pass in progress")}
	syn := &fakeSyncSvc{}
	ab := &fakeABTestSvc{}
	svc := NewAutomationService(opt, syn, ab, &fakeAudit{}, testLogger())

	res := svc.RunCycle(context.Background())

	if res.Errors["optimize"] == "" {
		t.Fatalf("optimizer failure not recorded: %#v", res.Errors)
	}
	if res.Optimize != nil {
		t.Fatalf("failed step must not report a result")
	}
	if syn.calls != 1 || ab.calls != 1 {
		t.Fatalf("other steps must still run: sync=%d abtests=%d", syn.calls, ab.calls)
	}

	st := svc.Status()
	if st.LastOptimization != nil {
		t.Fatalf("failed step must not be stamped")
	}
	if st.LastSync == nil || st.LastCycle == nil {
		t.Fatalf("successful steps must be stamped: %+v", st)
	}
}

func TestAutomationService_ManualCycleBypassesEnabled(t *testing.T) {
	t.Setenv("AUTOMATION_AUTOSTART", "false")
	opt := &fakeOptimizerSvc{}
	syn := &fakeSyncSvc{}
	ab := &fakeABTestSvc{}
	svc := NewAutomationService(opt, syn, ab, &fakeAudit{}, testLogger())

	svc.RunCycle(context.Background())

	if syn.calls != 1 || opt.calls != 1 || ab.calls != 1 {
		t.Fatalf("manual cycle must run while stopped: sync=%d optimize=%d abtests=%d", syn.calls, opt.calls, ab.calls)
	}
}

// ---------- fakes ----------

type fakeOptimizerSvc struct {
	calls int
	err   error
}

func (f *fakeOptimizerSvc) OptimizeAll(context.Context) (*OptimizeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &OptimizeResult{Optimized: 2}, nil
}

func (f *fakeOptimizerSvc) Summary(context.Context) (*AccountSummary, error) {
	return &AccountSummary{}, nil
}

type fakeSyncSvc struct {
	calls int
	err   error
}

func (f *fakeSyncSvc) SyncAll(context.Context) (*SyncResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &SyncResult{Updated: 3}, nil
}

type fakeABTestSvc struct {
	calls int
	err   error
}

func (f *fakeABTestSvc) CreateTest(context.Context, CreateTestRequest) (*types.ABTest, error) {
	return nil, nil
}

func (f *fakeABTestSvc) Evaluate(context.Context, *uuid.UUID) ([]TestResult, error) {
	return nil, nil
}

func (f *fakeABTestSvc) AutoOptimize(context.Context) (*AutoOptimizeResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &AutoOptimizeResult{Optimized: 1}, nil
}
