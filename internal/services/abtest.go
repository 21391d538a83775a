package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/httpx"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

// Both arms must clear this many impressions before a winner may be declared.
const minTestImpressions = 1000

type CreateTestRequest struct {
	Name            string         `json:"name"`
	CampaignID      *uuid.UUID     `json:"campaign_id,omitempty"`
	Platform        types.Platform `json:"platform,omitempty"`
	OriginalAdID    string         `json:"original_ad_id"`
	OriginalAdSetID string         `json:"original_ad_set_id"`
	VariantAdID     string         `json:"variant_ad_id"`
	VariantAdSetID  string         `json:"variant_ad_set_id"`
	VariantType     string         `json:"variant_type"`
	VariantValue    string         `json:"variant_value,omitempty"`
}

// TestResult is one test's evaluation as reported to callers. Error is set
// when the arms could not be measured; the test then stays running.
type TestResult struct {
	TestID              string  `json:"test_id"`
	Name                string  `json:"name"`
	Status              string  `json:"status"`
	ImpressionsOriginal int64   `json:"impressions_original"`
	ClicksOriginal      int64   `json:"clicks_original"`
	ImpressionsVariant  int64   `json:"impressions_variant"`
	ClicksVariant       int64   `json:"clicks_variant"`
	RateOriginal        float64 `json:"ctr_original"`
	RateVariant         float64 `json:"ctr_variant"`
	ZScore              float64 `json:"z_score"`
	Confidence          float64 `json:"confidence"`
	Significant         bool    `json:"significant"`
	Winner              string  `json:"winner,omitempty"`
	MinImpressionsMet   bool    `json:"min_impressions_met"`
	Recommendation      string  `json:"recommendation,omitempty"`
	Error               string  `json:"error,omitempty"`
}

type SkipReason struct {
	TestID string `json:"test_id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

type AutoOptimizeResult struct {
	Optimized int          `json:"optimized"`
	Skipped   []SkipReason `json:"skipped"`
	Timestamp time.Time    `json:"timestamp"`
}

type ABTestService interface {
	CreateTest(ctx context.Context, req CreateTestRequest) (*types.ABTest, error)
	Evaluate(ctx context.Context, testID *uuid.UUID) ([]TestResult, error)
	AutoOptimize(ctx context.Context) (*AutoOptimizeResult, error)
}

type abTestService struct {
	testRepo repos.ABTestRepo
	registry *adplatform.Registry
	executor ActionExecutor
	audit    AuditService
	notifier EngineNotifier
	log      *logger.Logger
}

func NewABTestService(
	testRepo repos.ABTestRepo,
	registry *adplatform.Registry,
	executor ActionExecutor,
	audit AuditService,
	notifier EngineNotifier,
	baseLog *logger.Logger,
) ABTestService {
	return &abTestService{
		testRepo: testRepo,
		registry: registry,
		executor: executor,
		audit:    audit,
		notifier: notifier,
		log:      baseLog.With("service", "ABTestService"),
	}
}

// CreateTest records a new experiment and splits the original ad set's daily
// budget evenly across the two arms. The pre-split budget is kept so the
// winner can be restored to it when the test concludes.
func (s *abTestService) CreateTest(ctx context.Context, req CreateTestRequest) (*types.ABTest, error) {
	vt, ok := types.ParseVariantType(req.VariantType)
	if !ok {
		return nil, fmt.Errorf("%w: variant_type must be headline, image or cta", errs.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name required", errs.ErrInvalidArgument)
	}
	if req.OriginalAdID == "" || req.OriginalAdSetID == "" || req.VariantAdID == "" || req.VariantAdSetID == "" {
		return nil, fmt.Errorf("%w: original and variant ad and ad set ids required", errs.ErrInvalidArgument)
	}
	platform := req.Platform
	if platform == "" {
		platform = types.PlatformMeta
	}
	client, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("%w: no %s client registered", errs.ErrNotConfigured, platform)
	}

	budgetCents, err := client.GetAdSetBudget(ctx, req.OriginalAdSetID)
	if err != nil {
		return nil, fmt.Errorf("read original ad set budget: %w", err)
	}
	if budgetCents <= 0 {
		return nil, fmt.Errorf("%w: original ad set reports no daily budget", errs.ErrInvalidArgument)
	}

	half := budgetCents / 2
	origOut := s.executor.SetAdSetBudget(ctx, platform, req.OriginalAdSetID, half)
	varOut := s.executor.SetAdSetBudget(ctx, platform, req.VariantAdSetID, half)

	meta, _ := json.Marshal(map[string]any{
		"split_cents":       half,
		"original_executed": origOut.Executed,
		"variant_executed":  varOut.Executed,
	})

	test := &types.ABTest{
		Name:                strings.TrimSpace(req.Name),
		CampaignID:          req.CampaignID,
		Platform:            platform,
		OriginalAdID:        req.OriginalAdID,
		OriginalAdSetID:     req.OriginalAdSetID,
		VariantAdID:         req.VariantAdID,
		VariantAdSetID:      req.VariantAdSetID,
		VariantType:         vt,
		VariantValue:        req.VariantValue,
		Status:              types.ABTestStatusRunning,
		SyncStatus:          types.ABTestSyncPending,
		OriginalBudgetCents: budgetCents,
		Metadata:            meta,
	}
	created, err := s.testRepo.Create(ctx, nil, []*types.ABTest{test})
	if err != nil {
		return nil, fmt.Errorf("persist ab test: %w", err)
	}
	out := created[0]

	s.audit.Record(ctx, AuditEntry{
		Action:     "ab_test_created",
		EntityType: "ab_test",
		EntityID:   out.ID.String(),
		Details: fmt.Sprintf("%s test %q on %s; $%.2f/day split across both arms",
			vt, out.Name, platform, money.CentsToDollars(budgetCents)),
		Severity: types.SeverityInfo,
	})
	s.log.Info("ab test created", "test_id", out.ID, "variant_type", vt, "platform", platform)
	return out, nil
}

// Evaluate measures all running tests, or one test by id. Confidence is
// persisted on every evaluation; the winner field only once both arms clear
// the impression floor and the difference is significant.
func (s *abTestService) Evaluate(ctx context.Context, testID *uuid.UUID) ([]TestResult, error) {
	var tests []*types.ABTest
	if testID != nil {
		t, err := s.testRepo.GetByID(ctx, nil, *testID)
		if err != nil {
			return nil, err
		}
		tests = []*types.ABTest{t}
	} else {
		var err error
		tests, err = s.testRepo.ListRunning(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("load running tests: %w", err)
		}
	}

	results := make([]TestResult, 0, len(tests))
	for _, t := range tests {
		results = append(results, s.evaluateOne(ctx, t))
	}
	return results, nil
}

func (s *abTestService) evaluateOne(ctx context.Context, test *types.ABTest) TestResult {
	res := TestResult{TestID: test.ID.String(), Name: test.Name, Status: string(test.Status)}
	if test.Status != types.ABTestStatusRunning {
		res.Confidence = test.ConfidenceLevel
		if test.Winner != nil {
			res.Winner = *test.Winner
		}
		res.Recommendation = "test already completed"
		return res
	}

	m, err := s.measure(ctx, test)
	if err != nil {
		s.log.Warn("ab test evaluation failed", "test_id", test.ID, "error", err)
		res.Error = err.Error()
		if isPermanentClientError(err) {
			s.failTest(ctx, test, err)
			res.Status = string(types.ABTestStatusError)
		}
		return res
	}

	res.ImpressionsOriginal = m.original.Impressions
	res.ClicksOriginal = m.original.Clicks
	res.ImpressionsVariant = m.variant.Impressions
	res.ClicksVariant = m.variant.Clicks
	res.RateOriginal = m.z.RateOriginal
	res.RateVariant = m.z.RateVariant
	res.ZScore = m.z.ZScore
	res.Confidence = m.z.Confidence
	res.Significant = m.z.Significant
	res.Winner = m.z.Winner
	res.MinImpressionsMet = m.minImpressionsMet
	res.Recommendation = recommendation(m)

	fields := map[string]interface{}{"confidence_level": m.z.Confidence}
	if m.z.Significant && m.minImpressionsMet {
		fields["winner"] = m.z.Winner
	}
	if err := s.testRepo.UpdateFields(ctx, nil, test.ID, fields); err != nil {
		s.log.Error("persist evaluation failed", "test_id", test.ID, "error", err)
	}
	return res
}

// AutoOptimize concludes every running test that has a decisive winner:
// pause the loser's ad set, restore the winner's to the pre-split budget,
// and complete the test. The decision is recorded even when both platform
// calls fail; SyncStatus carries how far it actually propagated.
func (s *abTestService) AutoOptimize(ctx context.Context) (*AutoOptimizeResult, error) {
	tests, err := s.testRepo.ListRunning(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load running tests: %w", err)
	}

	res := &AutoOptimizeResult{Timestamp: time.Now().UTC(), Skipped: []SkipReason{}}
	for _, test := range tests {
		m, err := s.measure(ctx, test)
		if err != nil {
			s.log.Warn("ab test measurement failed", "test_id", test.ID, "error", err)
			if isPermanentClientError(err) {
				s.failTest(ctx, test, err)
			}
			res.Skipped = append(res.Skipped, SkipReason{TestID: test.ID.String(), Name: test.Name, Reason: err.Error()})
			continue
		}

		if err := s.testRepo.UpdateFields(ctx, nil, test.ID, map[string]interface{}{"confidence_level": m.z.Confidence}); err != nil {
			s.log.Error("persist confidence failed", "test_id", test.ID, "error", err)
		}

		if !m.minImpressionsMet {
			res.Skipped = append(res.Skipped, SkipReason{TestID: test.ID.String(), Name: test.Name, Reason: "need 1000+ impressions each"})
			continue
		}
		if !m.z.Significant {
			res.Skipped = append(res.Skipped, SkipReason{
				TestID: test.ID.String(), Name: test.Name,
				Reason: fmt.Sprintf("confidence %.2f%% < 95%%", m.z.Confidence),
			})
			continue
		}

		var loserAdSet, winnerAdSet string
		var status types.ABTestStatus
		switch m.z.Winner {
		case types.WinnerVariant:
			loserAdSet, winnerAdSet = test.OriginalAdSetID, test.VariantAdSetID
			status = types.ABTestStatusWinnerVariant
		case types.WinnerOriginal:
			loserAdSet, winnerAdSet = test.VariantAdSetID, test.OriginalAdSetID
			status = types.ABTestStatusWinnerOriginal
		default:
			res.Skipped = append(res.Skipped, SkipReason{TestID: test.ID.String(), Name: test.Name, Reason: "inconclusive"})
			continue
		}

		pauseOut := s.executor.PauseAdSet(ctx, test.Platform, loserAdSet)
		restoreOut := s.executor.SetAdSetBudget(ctx, test.Platform, winnerAdSet, test.OriginalBudgetCents)

		syncStatus := types.ABTestSyncFailed
		switch {
		case pauseOut.Executed && restoreOut.Executed:
			syncStatus = types.ABTestSyncSynced
		case pauseOut.Executed || restoreOut.Executed:
			syncStatus = types.ABTestSyncPartial
		}

		applied, err := s.testRepo.Complete(ctx, nil, test.ID, map[string]interface{}{
			"status":           status,
			"sync_status":      syncStatus,
			"winner":           m.z.Winner,
			"confidence_level": m.z.Confidence,
		})
		if err != nil {
			s.log.Error("completing test failed", "test_id", test.ID, "error", err)
			res.Skipped = append(res.Skipped, SkipReason{TestID: test.ID.String(), Name: test.Name, Reason: fmt.Sprintf("persist failed: %v", err)})
			continue
		}
		if !applied {
			res.Skipped = append(res.Skipped, SkipReason{TestID: test.ID.String(), Name: test.Name, Reason: "already completed"})
			continue
		}

		res.Optimized++
		s.audit.Record(ctx, AuditEntry{
			Action:     "ab_test_completed",
			EntityType: "ab_test",
			EntityID:   test.ID.String(),
			Details: fmt.Sprintf("%s wins at %.2f%% confidence; loser ad set paused, winner restored to $%.2f/day",
				m.z.Winner, m.z.Confidence, money.CentsToDollars(test.OriginalBudgetCents)),
			Severity: types.SeverityInfo,
			Meta: map[string]any{
				"winner":      m.z.Winner,
				"confidence":  m.z.Confidence,
				"sync_status": string(syncStatus),
			},
		})
		s.notifier.TestCompleted(ctx, test.ID.String(), m.z.Winner)
	}

	s.log.Info("ab test auto-optimize complete", "optimized", res.Optimized, "skipped", len(res.Skipped))
	return res, nil
}

type measured struct {
	original          *adplatform.Insights
	variant           *adplatform.Insights
	z                 ZTestResult
	minImpressionsMet bool
}

func (s *abTestService) measure(ctx context.Context, test *types.ABTest) (*measured, error) {
	client, ok := s.registry.Get(test.Platform)
	if !ok {
		return nil, fmt.Errorf("no %s client registered", test.Platform)
	}
	orig, err := client.GetAdInsights(ctx, test.OriginalAdID, test.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("original ad insights: %w", err)
	}
	vari, err := client.GetAdInsights(ctx, test.VariantAdID, test.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("variant ad insights: %w", err)
	}

	return &measured{
		original:          orig,
		variant:           vari,
		z:                 TwoProportionZTest(orig.Impressions, orig.Clicks, vari.Impressions, vari.Clicks),
		minImpressionsMet: orig.Impressions >= minTestImpressions && vari.Impressions >= minTestImpressions,
	}, nil
}

func recommendation(m *measured) string {
	if !m.minImpressionsMet {
		return "need 1000+ impressions each"
	}
	if !m.z.Significant {
		return fmt.Sprintf("confidence %.2f%% < 95%%; keep running", m.z.Confidence)
	}
	return fmt.Sprintf("declare %s the winner", m.z.Winner)
}

// failTest marks a running test as errored when its ads can no longer be
// measured (typically deleted on the platform side).
func (s *abTestService) failTest(ctx context.Context, test *types.ABTest, cause error) {
	applied, err := s.testRepo.Complete(ctx, nil, test.ID, map[string]interface{}{
		"status":      types.ABTestStatusError,
		"sync_status": types.ABTestSyncFailed,
	})
	if err != nil {
		s.log.Error("marking test errored failed", "test_id", test.ID, "error", err)
		return
	}
	if applied {
		s.audit.Record(ctx, AuditEntry{
			Action:     "ab_test_error",
			EntityType: "ab_test",
			EntityID:   test.ID.String(),
			Details:    cause.Error(),
			Severity:   types.SeverityWarning,
		})
	}
}

// A 4xx other than 408/429 will not heal on retry: the referenced ad is gone
// or the request is malformed.
func isPermanentClientError(err error) bool {
	var coder httpx.HTTPStatusCoder
	if !errors.As(err, &coder) {
		return false
	}
	code := coder.HTTPStatusCode()
	if code == 408 || code == 429 {
		return false
	}
	return code >= 400 && code < 500
}
