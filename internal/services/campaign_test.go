package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/types"
)

func newTestCampaignService(repo *fakeCampaignRepo, ex ActionExecutor, audit *fakeAudit) CampaignService {
	return NewCampaignService(repo, ex, audit, testLogger())
}

func TestCampaignService_CreateDefaultsAndRounds(t *testing.T) {
	repo := &fakeCampaignRepo{}
	audit := &fakeAudit{}
	svc := newTestCampaignService(repo, &fakeExecutor{}, audit)

	created, err := svc.Create(context.Background(), CreateCampaignRequest{
		Name:        "  Summer Launch  ",
		DailyBudget: 12.345,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Name != "Summer Launch" {
		t.Fatalf("name not trimmed: %q", created.Name)
	}
	if created.Platform != types.PlatformMeta {
		t.Fatalf("platform not defaulted: %s", created.Platform)
	}
	if created.Status != types.CampaignStatusActive {
		t.Fatalf("status not defaulted: %s", created.Status)
	}
	if created.DailyBudget != 12.35 {
		t.Fatalf("budget not rounded: %.4f", created.DailyBudget)
	}
	if len(repo.all) != 1 {
		t.Fatalf("campaign not persisted")
	}

	var createdAudits int
	for _, e := range audit.entries {
		if e.Action == "campaign_created" {
			createdAudits++
		}
	}
	if createdAudits != 1 {
		t.Fatalf("expected one creation audit, got %d", createdAudits)
	}
}

func TestCampaignService_CreateValidatesInput(t *testing.T) {
	svc := newTestCampaignService(&fakeCampaignRepo{}, &fakeExecutor{}, &fakeAudit{})

	if _, err := svc.Create(context.Background(), CreateCampaignRequest{Name: "", DailyBudget: 5}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("empty name: got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateCampaignRequest{Name: "X", DailyBudget: 0}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("zero budget: got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateCampaignRequest{Name: "X", DailyBudget: 5, Platform: "myspace"}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("unknown platform: got %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateCampaignRequest{Name: "X", DailyBudget: 5, Status: "sleeping"}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("unknown status: got %v", err)
	}
}

func TestCampaignService_UpdateWritesOnlyProvidedFields(t *testing.T) {
	c := testCampaign(nil)
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	svc := newTestCampaignService(repo, &fakeExecutor{}, &fakeAudit{})

	budget := 22.0
	if _, err := svc.Update(context.Background(), c.ID, UpdateCampaignRequest{DailyBudget: &budget}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fields := repo.updated[c.ID]
	if len(fields) != 1 || fields["daily_budget"] != 22.0 {
		t.Fatalf("unexpected fields: %#v", fields)
	}
}

func TestCampaignService_UpdateRejectsBadStatus(t *testing.T) {
	c := testCampaign(nil)
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	svc := newTestCampaignService(repo, &fakeExecutor{}, &fakeAudit{})

	bad := "sleeping"
	if _, err := svc.Update(context.Background(), c.ID, UpdateCampaignRequest{Status: &bad}); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if len(repo.updated) != 0 {
		t.Fatalf("nothing may be written on validation failure")
	}
}

func TestCampaignService_UpdateUnknownIDReturnsNotFound(t *testing.T) {
	svc := newTestCampaignService(&fakeCampaignRepo{}, &fakeExecutor{}, &fakeAudit{})

	name := "New"
	if _, err := svc.Update(context.Background(), uuid.New(), UpdateCampaignRequest{Name: &name}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCampaignService_PauseCallsPlatformAndPersists(t *testing.T) {
	c := testCampaign(nil)
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	ex := &fakeExecutor{}
	svc := newTestCampaignService(repo, ex, &fakeAudit{})

	paused, err := svc.Pause(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != types.CampaignStatusPaused {
		t.Fatalf("status = %s", paused.Status)
	}
	if len(ex.calls) != 1 || ex.calls[0].method != "pause_campaign" {
		t.Fatalf("platform not called: %#v", ex.calls)
	}
	if repo.updated[c.ID]["status"] != types.CampaignStatusPaused {
		t.Fatalf("pause not persisted: %#v", repo.updated)
	}
}

func TestCampaignService_PauseAlreadyPausedIsANoOp(t *testing.T) {
	c := testCampaign(func(c *types.Campaign) { c.Status = types.CampaignStatusPaused })
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	ex := &fakeExecutor{}
	svc := newTestCampaignService(repo, ex, &fakeAudit{})

	if _, err := svc.Pause(context.Background(), c.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if len(ex.calls) != 0 {
		t.Fatalf("paused campaign must not be re-paused: %#v", ex.calls)
	}
}

func TestCampaignService_CleanupPassesProtectedIDs(t *testing.T) {
	t.Setenv("PROTECTED_CAMPAIGN_IDS", "ext-1, ext-2 ,")
	repo := &fakeCampaignRepo{zombiesDeleted: 4}
	audit := &fakeAudit{}
	svc := newTestCampaignService(repo, &fakeExecutor{}, audit)

	deleted, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("deleted = %d, want 4", deleted)
	}
	if len(repo.zombieProtected) != 2 || repo.zombieProtected[0] != "ext-1" || repo.zombieProtected[1] != "ext-2" {
		t.Fatalf("protected list mangled: %#v", repo.zombieProtected)
	}

	var cleanupAudits int
	for _, e := range audit.entries {
		if e.Action == "campaigns_cleanup" {
			cleanupAudits++
		}
	}
	if cleanupAudits != 1 {
		t.Fatalf("expected one cleanup audit, got %d", cleanupAudits)
	}
}

func TestCampaignService_CleanupNothingDeletedSkipsAudit(t *testing.T) {
	t.Setenv("PROTECTED_CAMPAIGN_IDS", "")
	audit := &fakeAudit{}
	svc := newTestCampaignService(&fakeCampaignRepo{}, &fakeExecutor{}, audit)

	deleted, err := svc.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 0 || len(audit.entries) != 0 {
		t.Fatalf("no-op cleanup must not audit: deleted=%d entries=%d", deleted, len(audit.entries))
	}
}
