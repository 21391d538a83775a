package services

import (
	"context"
	"errors"
	"testing"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/types"
)

func newTestSync(t *testing.T, repo *fakeCampaignRepo, audit *fakeAudit, notifier *fakeNotifier, clients ...adplatform.Client) PerformanceSyncService {
	t.Helper()
	return NewPerformanceSyncService(repo, newTestRegistry(t, clients...), audit, notifier, testLogger())
}

func TestPerformanceSync_RefreshesCountersAndROAS(t *testing.T) {
	c := testCampaign(func(c *types.Campaign) {
		c.Impressions = 500
		c.Clicks = 20
		c.Spend = 10
		c.Revenue = 20
	})
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	client := newFakeAdClient(types.PlatformMeta)
	client.campaignInsights = []adplatform.CampaignInsights{{
		CampaignID:   "ext-1",
		CampaignName: "Remote Name",
		Impressions:  1000,
		Clicks:       50,
		Conversions:  5,
		Spend:        40,
		Revenue:      100,
	}}
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	svc := newTestSync(t, repo, audit, notifier, client)

	res, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if res.Updated != 1 || res.Skipped != 0 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	fields := repo.updated[c.ID]
	if fields == nil {
		t.Fatalf("campaign not written")
	}
	if fields["impressions"] != int64(1000) || fields["clicks"] != int64(50) || fields["conversions"] != int64(5) {
		t.Fatalf("counters not refreshed: %#v", fields)
	}
	if fields["spend"] != 40.0 || fields["revenue"] != 100.0 {
		t.Fatalf("money not refreshed: %#v", fields)
	}
	if fields["roas"] != 2.5 {
		t.Fatalf("roas = %v, want 2.5", fields["roas"])
	}
	if fields["name"] != "Remote Name" {
		t.Fatalf("name not refreshed: %#v", fields)
	}

	var syncAudits int
	for _, e := range audit.entries {
		if e.Action == "performance_sync" {
			syncAudits++
		}
	}
	if syncAudits != 1 {
		t.Fatalf("expected one sync audit, got %d", syncAudits)
	}
	if len(notifier.syncUpdates) != 1 || notifier.syncUpdates[0] != 1 {
		t.Fatalf("unexpected sync notifications: %#v", notifier.syncUpdates)
	}
}

func TestPerformanceSync_IgnoresUnderReportingWindow(t *testing.T) {
	c := testCampaign(func(c *types.Campaign) {
		c.Impressions = 5000
		c.Clicks = 200
		c.Spend = 90
		c.Revenue = 150
	})
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	client := newFakeAdClient(types.PlatformMeta)
	// A short window sees only a slice of the lifetime totals.
	client.campaignInsights = []adplatform.CampaignInsights{{
		CampaignID:   "ext-1",
		CampaignName: "Test Campaign",
		Impressions:  300,
		Clicks:       12,
		Spend:        5,
		Revenue:      9,
	}}
	svc := newTestSync(t, repo, &fakeAudit{}, &fakeNotifier{}, client)

	res, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if res.Updated != 0 {
		t.Fatalf("counters must never move backwards: %+v", res)
	}
	if len(repo.updated) != 0 {
		t.Fatalf("unexpected writes: %#v", repo.updated)
	}
}

func TestPerformanceSync_PartialRefreshRecomputesROASFromEffectiveValues(t *testing.T) {
	c := testCampaign(func(c *types.Campaign) {
		c.Impressions = 500
		c.Clicks = 100
		c.Spend = 10
		c.Revenue = 20
	})
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}
	client := newFakeAdClient(types.PlatformMeta)
	client.campaignInsights = []adplatform.CampaignInsights{{
		CampaignID:   "ext-1",
		CampaignName: "Test Campaign",
		Impressions:  800, // newer
		Clicks:       40,  // stale
		Spend:        4,   // stale
		Revenue:      6,   // stale
	}}
	svc := newTestSync(t, repo, &fakeAudit{}, &fakeNotifier{}, client)

	if _, err := svc.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	fields := repo.updated[c.ID]
	if fields == nil {
		t.Fatalf("campaign not written")
	}
	if fields["impressions"] != int64(800) {
		t.Fatalf("impressions not refreshed: %#v", fields)
	}
	if _, ok := fields["clicks"]; ok {
		t.Fatalf("stale clicks must be ignored: %#v", fields)
	}
	if _, ok := fields["spend"]; ok {
		t.Fatalf("stale spend must be ignored: %#v", fields)
	}
	// ROAS comes from the values that stand after the merge.
	if fields["roas"] != 2.0 {
		t.Fatalf("roas = %v, want 2.0", fields["roas"])
	}
}

func TestPerformanceSync_SkipsUnknownExternalIDs(t *testing.T) {
	repo := &fakeCampaignRepo{}
	client := newFakeAdClient(types.PlatformMeta)
	client.campaignInsights = []adplatform.CampaignInsights{{CampaignID: "ghost", Impressions: 100}}
	svc := newTestSync(t, repo, &fakeAudit{}, &fakeNotifier{}, client)

	res, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if res.Updated != 0 || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPerformanceSync_PlatformFailureDoesNotStopOthers(t *testing.T) {
	googleExt := "g-1"
	c := testCampaign(func(c *types.Campaign) {
		c.Platform = types.PlatformGoogle
		c.ExternalID = &googleExt
		c.Impressions = 10
	})
	repo := &fakeCampaignRepo{all: []*types.Campaign{c}}

	broken := newFakeAdClient(types.PlatformMeta)
	broken.failWith = errors.New("token expired")
	google := newFakeAdClient(types.PlatformGoogle)
	google.campaignInsights = []adplatform.CampaignInsights{{
		CampaignID:  "g-1",
		Impressions: 900,
		Clicks:      30,
		Spend:       12,
		Revenue:     20,
	}}
	svc := newTestSync(t, repo, &fakeAudit{}, &fakeNotifier{}, broken, google)

	res, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("a broken platform must not fail the sync: %v", err)
	}
	if res.Updated != 1 {
		t.Fatalf("healthy platform should still sync: %+v", res)
	}
	if res.Errors["meta"] == "" {
		t.Fatalf("broken platform error not collected: %+v", res)
	}
	if len(repo.updated[c.ID]) == 0 {
		t.Fatalf("google campaign not written")
	}
}

func TestPerformanceSync_NoClientsIsANoOp(t *testing.T) {
	audit := &fakeAudit{}
	notifier := &fakeNotifier{}
	svc := newTestSync(t, &fakeCampaignRepo{}, audit, notifier)

	res, err := svc.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if res.Updated != 0 || res.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(audit.entries) != 0 || len(notifier.syncUpdates) != 0 {
		t.Fatalf("nothing should be recorded without clients")
	}
}
