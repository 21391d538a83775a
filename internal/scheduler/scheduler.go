package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/services"
)

// Scheduler drives the periodic engine jobs. Each enabled entry gets its own
// ticker loop; ticks are skipped while automation is stopped, so a paused
// engine keeps its schedule without doing work.
type Scheduler struct {
	automation services.AutomationService
	perfSync   services.PerformanceSyncService
	abtests    services.ABTestService
	entries    []Entry
	log        *logger.Logger
	wg         sync.WaitGroup
}

func New(
	automation services.AutomationService,
	perfSync services.PerformanceSyncService,
	abtests services.ABTestService,
	baseLog *logger.Logger,
) *Scheduler {
	log := baseLog.With("component", "Scheduler")
	return &Scheduler{
		automation: automation,
		perfSync:   perfSync,
		abtests:    abtests,
		entries:    Entries(log),
		log:        log,
	}
}

// Start launches one loop per enabled entry. Loops exit when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		if !e.Enabled {
			s.log.Info("job disabled", "job", e.Name)
			continue
		}
		s.wg.Add(1)
		go s.run(ctx, e)
	}
}

// Wait blocks until every loop started by Start has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, e Entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	s.log.Info("job scheduled", "job", e.Name, "interval", e.Interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("job loop stopped", "job", e.Name)
			return
		case <-ticker.C:
			if !s.automation.Enabled() {
				s.log.Debug("automation stopped; tick skipped", "job", e.Name)
				continue
			}
			s.dispatch(ctx, e.Name)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job string) {
	start := time.Now()
	// A panicking job must not take its loop down with it.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panic", "job", job, "panic", r)
		}
	}()

	switch job {
	case JobOptimizationCycle:
		res := s.automation.RunCycle(ctx)
		if len(res.Errors) > 0 {
			s.log.Error("cycle finished with step errors", "job", job, "errors", res.Errors)
		}
	case JobPerformanceSync:
		if _, err := s.perfSync.SyncAll(ctx); err != nil {
			s.log.Error("scheduled sync failed", "job", job, "error", err)
		}
	case JobABTestEvaluate:
		if _, err := s.abtests.Evaluate(ctx, nil); err != nil {
			s.log.Error("scheduled ab test evaluation failed", "job", job, "error", err)
		}
	}
	s.log.Info("job finished", "job", job, "duration", time.Since(start))
}
