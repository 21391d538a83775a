package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/types"
)

func newTestABTestService(t *testing.T, repo *fakeABTestRepo, client adplatform.Client, audit *fakeAudit, notifier *fakeNotifier) ABTestService {
	t.Helper()
	log := testLogger()
	registry := newTestRegistry(t, client)
	executor := NewActionExecutor(registry, audit, log)
	return NewABTestService(repo, registry, executor, audit, notifier, log)
}

func runningTest(mutate func(*types.ABTest)) *types.ABTest {
	tst := &types.ABTest{
		ID:                  uuid.New(),
		Name:                "Headline copy",
		Platform:            types.PlatformMeta,
		OriginalAdID:        "ad-orig",
		OriginalAdSetID:     "adset-orig",
		VariantAdID:         "ad-var",
		VariantAdSetID:      "adset-var",
		VariantType:         types.VariantTypeHeadline,
		Status:              types.ABTestStatusRunning,
		SyncStatus:          types.ABTestSyncPending,
		OriginalBudgetCents: 2400,
		CreatedAt:           time.Now().UTC().Add(-48 * time.Hour),
	}
	if mutate != nil {
		mutate(tst)
	}
	return tst
}

func TestABTestService_CreateTestSplitsBudget(t *testing.T) {
	client := newFakeAdClient(types.PlatformMeta)
	client.adSetBudgets["adset-orig"] = 2000
	repo := &fakeABTestRepo{}
	audit := &fakeAudit{}
	svc := newTestABTestService(t, repo, client, audit, &fakeNotifier{})

	created, err := svc.CreateTest(context.Background(), CreateTestRequest{
		Name:            "Headline copy",
		OriginalAdID:    "ad-orig",
		OriginalAdSetID: "adset-orig",
		VariantAdID:     "ad-var",
		VariantAdSetID:  "adset-var",
		VariantType:     "headline",
	})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}
	if created.Platform != types.PlatformMeta {
		t.Fatalf("platform not defaulted: %s", created.Platform)
	}
	if created.OriginalBudgetCents != 2000 {
		t.Fatalf("pre-split budget = %d, want 2000", created.OriginalBudgetCents)
	}
	if created.Status != types.ABTestStatusRunning || created.SyncStatus != types.ABTestSyncPending {
		t.Fatalf("unexpected initial state: %s/%s", created.Status, created.SyncStatus)
	}
	if client.adSetBudgets["adset-orig"] != 1000 || client.adSetBudgets["adset-var"] != 1000 {
		t.Fatalf("budgets not split: %#v", client.adSetBudgets)
	}

	var createdAudits int
	for _, e := range audit.entries {
		if e.Action == "ab_test_created" {
			createdAudits++
		}
	}
	if createdAudits != 1 {
		t.Fatalf("expected one creation audit, got %d", createdAudits)
	}
}

func TestABTestService_CreateTestRejectsUnknownVariantType(t *testing.T) {
	svc := newTestABTestService(t, &fakeABTestRepo{}, newFakeAdClient(types.PlatformMeta), &fakeAudit{}, &fakeNotifier{})

	_, err := svc.CreateTest(context.Background(), CreateTestRequest{
		Name:            "Bad",
		OriginalAdID:    "a",
		OriginalAdSetID: "b",
		VariantAdID:     "c",
		VariantAdSetID:  "d",
		VariantType:     "color",
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestABTestService_CreateTestRequiresOriginalBudget(t *testing.T) {
	client := newFakeAdClient(types.PlatformMeta) // no budget recorded for the ad set
	svc := newTestABTestService(t, &fakeABTestRepo{}, client, &fakeAudit{}, &fakeNotifier{})

	_, err := svc.CreateTest(context.Background(), CreateTestRequest{
		Name:            "No budget",
		OriginalAdID:    "ad-orig",
		OriginalAdSetID: "adset-orig",
		VariantAdID:     "ad-var",
		VariantAdSetID:  "adset-var",
		VariantType:     "image",
	})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if !strings.Contains(err.Error(), "no daily budget") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestABTestService_EvaluateReportsSignificantWinner(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 1200, Clicks: 30}
	client.adInsights["ad-var"] = &adplatform.Insights{Impressions: 1200, Clicks: 55}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, client, &fakeAudit{}, &fakeNotifier{})

	results, err := svc.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	res := results[0]
	if !res.Significant || res.Winner != types.WinnerVariant {
		t.Fatalf("unexpected verdict: %+v", res)
	}
	if res.Confidence < 95 {
		t.Fatalf("confidence %.2f, want >= 95", res.Confidence)
	}
	if !res.MinImpressionsMet {
		t.Fatalf("impression floor should be met")
	}
	if !strings.Contains(res.Recommendation, "declare variant the winner") {
		t.Fatalf("unexpected recommendation %q", res.Recommendation)
	}

	fields := repo.updated[tst.ID]
	if fields == nil || fields["winner"] != types.WinnerVariant {
		t.Fatalf("winner not persisted: %#v", fields)
	}
	if _, ok := fields["confidence_level"]; !ok {
		t.Fatalf("confidence not persisted: %#v", fields)
	}
}

func TestABTestService_EvaluateWithholdsWinnerBelowThreshold(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 1200, Clicks: 50}
	client.adInsights["ad-var"] = &adplatform.Insights{Impressions: 1200, Clicks: 60}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, client, &fakeAudit{}, &fakeNotifier{})

	results, err := svc.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	res := results[0]
	if res.Significant {
		t.Fatalf("a 10-click edge must not be significant: %+v", res)
	}
	if res.Winner != types.WinnerInconclusive {
		t.Fatalf("winner = %q, want inconclusive", res.Winner)
	}
	if !strings.Contains(res.Recommendation, "keep running") {
		t.Fatalf("unexpected recommendation %q", res.Recommendation)
	}

	fields := repo.updated[tst.ID]
	if fields == nil {
		t.Fatalf("confidence should still be persisted")
	}
	if _, ok := fields["winner"]; ok {
		t.Fatalf("winner must not be persisted below threshold: %#v", fields)
	}
}

func TestABTestService_EvaluateByIDPassesThroughNotFound(t *testing.T) {
	repo := &fakeABTestRepo{getErr: errs.ErrNotFound}
	svc := newTestABTestService(t, repo, newFakeAdClient(types.PlatformMeta), &fakeAudit{}, &fakeNotifier{})

	id := uuid.New()
	_, err := svc.Evaluate(context.Background(), &id)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestABTestService_EvaluateCompletedTestReadsStoredVerdict(t *testing.T) {
	winner := types.WinnerVariant
	tst := runningTest(func(tst *types.ABTest) {
		tst.Status = types.ABTestStatusWinnerVariant
		tst.ConfidenceLevel = 97.5
		tst.Winner = &winner
	})
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, newFakeAdClient(types.PlatformMeta), &fakeAudit{}, &fakeNotifier{})

	results, err := svc.Evaluate(context.Background(), &tst.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	res := results[0]
	if res.Winner != types.WinnerVariant || res.Confidence != 97.5 {
		t.Fatalf("stored verdict not reported: %+v", res)
	}
	if res.Recommendation != "test already completed" {
		t.Fatalf("unexpected recommendation %q", res.Recommendation)
	}
	if len(repo.updated) != 0 {
		t.Fatalf("completed test must not be rewritten")
	}
}

func TestABTestService_EvaluateTransientFailureKeepsTestRunning(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.failWith = errors.New("connection reset")
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, client, &fakeAudit{}, &fakeNotifier{})

	results, err := svc.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	res := results[0]
	if res.Error == "" {
		t.Fatalf("expected measurement error to be reported")
	}
	if res.Status != string(types.ABTestStatusRunning) {
		t.Fatalf("transient failure must keep the test running, got %s", res.Status)
	}
	if len(repo.completed) != 0 {
		t.Fatalf("test must not be completed: %#v", repo.completed)
	}
}

func TestABTestService_EvaluatePermanentFailureErrorsTest(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.failWith = statusErr{code: 404}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	audit := &fakeAudit{}
	svc := newTestABTestService(t, repo, client, audit, &fakeNotifier{})

	results, err := svc.Evaluate(context.Background(), nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if results[0].Status != string(types.ABTestStatusError) {
		t.Fatalf("expected error status, got %s", results[0].Status)
	}

	fields := repo.completed[tst.ID]
	if fields == nil || fields["status"] != types.ABTestStatusError || fields["sync_status"] != types.ABTestSyncFailed {
		t.Fatalf("error state not persisted: %#v", fields)
	}
	var errorAudits int
	for _, e := range audit.entries {
		if e.Action == "ab_test_error" {
			errorAudits++
		}
	}
	if errorAudits != 1 {
		t.Fatalf("expected one error audit, got %d", errorAudits)
	}
}

func TestABTestService_AutoOptimizeConcludesDecisiveTest(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 1200, Clicks: 30}
	client.adInsights["ad-var"] = &adplatform.Insights{Impressions: 1200, Clicks: 55}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	svc := newTestABTestService(t, repo, client, audit, notifier)

	res, err := svc.AutoOptimize(context.Background())
	if err != nil {
		t.Fatalf("AutoOptimize: %v", err)
	}
	if res.Optimized != 1 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(client.pausedAdSets) != 1 || client.pausedAdSets[0] != "adset-orig" {
		t.Fatalf("loser ad set not paused: %#v", client.pausedAdSets)
	}
	if client.adSetBudgets["adset-var"] != 2400 {
		t.Fatalf("winner not restored to pre-split budget: %#v", client.adSetBudgets)
	}

	fields := repo.completed[tst.ID]
	if fields == nil {
		t.Fatalf("test not completed")
	}
	if fields["status"] != types.ABTestStatusWinnerVariant || fields["sync_status"] != types.ABTestSyncSynced {
		t.Fatalf("unexpected completion fields: %#v", fields)
	}
	if fields["winner"] != types.WinnerVariant {
		t.Fatalf("winner missing from completion: %#v", fields)
	}
	if len(notifier.testIDs) != 1 || notifier.testIDs[0] != tst.ID.String() {
		t.Fatalf("completion not broadcast: %#v", notifier.testIDs)
	}
}

func TestABTestService_AutoOptimizeSkipsBelowImpressionFloor(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 400, Clicks: 20}
	client.adInsights["ad-var"] = &adplatform.Insights{Impressions: 400, Clicks: 28}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, client, &fakeAudit{}, &fakeNotifier{})

	res, err := svc.AutoOptimize(context.Background())
	if err != nil {
		t.Fatalf("AutoOptimize: %v", err)
	}
	if res.Optimized != 0 || len(res.Skipped) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Skipped[0].Reason != "need 1000+ impressions each" {
		t.Fatalf("unexpected skip reason %q", res.Skipped[0].Reason)
	}
	if len(client.pausedAdSets) != 0 {
		t.Fatalf("no ad set may be paused: %#v", client.pausedAdSets)
	}
	// Confidence still lands even when the test keeps running.
	if _, ok := repo.updated[tst.ID]["confidence_level"]; !ok {
		t.Fatalf("confidence not persisted: %#v", repo.updated)
	}
}

func TestABTestService_AutoOptimizeSkipsBelowConfidence(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 1200, Clicks: 50}
	client.adInsights["ad-var"] = &adplatform.Insights{Impressions: 1200, Clicks: 60}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, client, &fakeAudit{}, &fakeNotifier{})

	res, err := svc.AutoOptimize(context.Background())
	if err != nil {
		t.Fatalf("AutoOptimize: %v", err)
	}
	if res.Optimized != 0 || len(res.Skipped) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	reason := res.Skipped[0].Reason
	if !strings.HasPrefix(reason, "confidence ") || !strings.Contains(reason, "< 95%") {
		t.Fatalf("unexpected skip reason %q", reason)
	}
	if len(client.pausedAdSets) != 0 || client.adSetBudgets["adset-var"] != 0 {
		t.Fatalf("platform must be untouched below threshold")
	}
}

func TestABTestService_AutoOptimizeRecordsPartialSync(t *testing.T) {
	tst := runningTest(nil)
	inner := newFakeAdClient(types.PlatformMeta)
	inner.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 1200, Clicks: 30}
	inner.adInsights["ad-var"] = &adplatform.Insights{Impressions: 1200, Clicks: 55}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}}
	svc := newTestABTestService(t, repo, &pauseFailingClient{inner}, &fakeAudit{}, &fakeNotifier{})

	res, err := svc.AutoOptimize(context.Background())
	if err != nil {
		t.Fatalf("AutoOptimize: %v", err)
	}
	if res.Optimized != 1 {
		t.Fatalf("decision must be recorded despite the failed pause: %+v", res)
	}

	fields := repo.completed[tst.ID]
	if fields == nil || fields["sync_status"] != types.ABTestSyncPartial {
		t.Fatalf("expected partial sync, got %#v", fields)
	}
	if fields["status"] != types.ABTestStatusWinnerVariant {
		t.Fatalf("verdict lost: %#v", fields)
	}
}

func TestABTestService_AutoOptimizeHonorsCompleteOnceGuard(t *testing.T) {
	tst := runningTest(nil)
	client := newFakeAdClient(types.PlatformMeta)
	client.adInsights["ad-orig"] = &adplatform.Insights{Impressions: 1200, Clicks: 30}
	client.adInsights["ad-var"] = &adplatform.Insights{Impressions: 1200, Clicks: 55}
	repo := &fakeABTestRepo{tests: []*types.ABTest{tst}, completeBlocked: true}
	notifier := &fakeNotifier{}
	svc := newTestABTestService(t, repo, client, &fakeAudit{}, notifier)

	res, err := svc.AutoOptimize(context.Background())
	if err != nil {
		t.Fatalf("AutoOptimize: %v", err)
	}
	if res.Optimized != 0 || len(res.Skipped) != 1 || res.Skipped[0].Reason != "already completed" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(notifier.testIDs) != 0 {
		t.Fatalf("must not broadcast a completion that did not apply")
	}
}

// ---------- fakes ----------

type fakeABTestRepo struct {
	tests           []*types.ABTest
	updated         map[uuid.UUID]map[string]interface{}
	completed       map[uuid.UUID]map[string]interface{}
	getErr          error
	listErr         error
	createErr       error
	completeErr     error
	completeBlocked bool
}

func (f *fakeABTestRepo) Create(_ context.Context, _ *gorm.DB, tests []*types.ABTest) ([]*types.ABTest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, t := range tests {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.CreatedAt = time.Now().UTC()
	}
	f.tests = append(f.tests, tests...)
	return tests, nil
}

func (f *fakeABTestRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.ABTest, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, t := range f.tests {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeABTestRepo) ListRunning(_ context.Context, _ *gorm.DB) ([]*types.ABTest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var running []*types.ABTest
	for _, t := range f.tests {
		if t.Status == types.ABTestStatusRunning {
			running = append(running, t)
		}
	}
	return running, nil
}

func (f *fakeABTestRepo) List(_ context.Context, _ *gorm.DB, offset, limit int) ([]*types.ABTest, error) {
	if offset >= len(f.tests) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.tests) {
		end = len(f.tests)
	}
	return f.tests[offset:end], nil
}

func (f *fakeABTestRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if f.updated == nil {
		f.updated = make(map[uuid.UUID]map[string]interface{})
	}
	f.updated[id] = fields
	return nil
}

func (f *fakeABTestRepo) Complete(_ context.Context, _ *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	if f.completeErr != nil {
		return false, f.completeErr
	}
	if f.completeBlocked {
		return false, nil
	}
	if f.completed == nil {
		f.completed = make(map[uuid.UUID]map[string]interface{})
	}
	f.completed[id] = fields
	for _, t := range f.tests {
		if t.ID == id {
			if st, ok := fields["status"].(types.ABTestStatus); ok {
				t.Status = st
			}
		}
	}
	return true, nil
}

type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("platform api status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

// pauseFailingClient rejects ad set pauses while everything else succeeds.
type pauseFailingClient struct {
	*fakeAdClient
}

func (c *pauseFailingClient) PauseAdSet(context.Context, string) error {
	return errors.New("pause rejected")
}
