package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autosem/autosem-backend/internal/adplatform"
	"github.com/autosem/autosem-backend/internal/pkg/envutil"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

// SyncResult summarizes one performance sync. Errors is keyed by platform;
// a platform failing does not stop the others.
type SyncResult struct {
	Updated   int               `json:"updated"`
	Skipped   int               `json:"skipped"`
	Errors    map[string]string `json:"errors,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type PerformanceSyncService interface {
	SyncAll(ctx context.Context) (*SyncResult, error)
}

type performanceSyncService struct {
	campaignRepo repos.CampaignRepo
	registry     *adplatform.Registry
	audit        AuditService
	notifier     EngineNotifier
	window       time.Duration
	log          *logger.Logger
}

func NewPerformanceSyncService(
	campaignRepo repos.CampaignRepo,
	registry *adplatform.Registry,
	audit AuditService,
	notifier EngineNotifier,
	baseLog *logger.Logger,
) PerformanceSyncService {
	return &performanceSyncService{
		campaignRepo: campaignRepo,
		registry:     registry,
		audit:        audit,
		notifier:     notifier,
		window:       envutil.Duration("SYNC_WINDOW", 7*24*time.Hour),
		log:          baseLog.With("service", "PerformanceSyncService"),
	}
}

// SyncAll pulls campaign insights from every registered platform in parallel
// and refreshes the matching local campaigns' cumulative counters.
func (s *performanceSyncService) SyncAll(ctx context.Context) (*SyncResult, error) {
	platforms := s.registry.Platforms()
	res := &SyncResult{Timestamp: time.Now().UTC(), Errors: map[string]string{}}
	if len(platforms) == 0 {
		s.log.Warn("no platform clients registered; nothing to sync")
		return res, nil
	}

	since := time.Now().UTC().Add(-s.window)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, platform := range platforms {
		g.Go(func() error {
			updated, skipped, err := s.syncPlatform(gctx, platform, since)
			mu.Lock()
			defer mu.Unlock()
			res.Updated += updated
			res.Skipped += skipped
			if err != nil {
				s.log.Error("platform sync failed", "platform", platform, "error", err)
				res.Errors[string(platform)] = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.audit.Record(ctx, AuditEntry{
		Action:     "performance_sync",
		EntityType: "account",
		Details:    fmt.Sprintf("synced %d campaigns across %d platforms", res.Updated, len(platforms)),
		Severity:   types.SeverityInfo,
		Meta:       map[string]any{"updated": res.Updated, "skipped": res.Skipped, "errors": len(res.Errors)},
	})
	s.notifier.SyncCompleted(ctx, res.Updated)
	return res, nil
}

func (s *performanceSyncService) syncPlatform(ctx context.Context, platform types.Platform, since time.Time) (updated, skipped int, err error) {
	client, ok := s.registry.Get(platform)
	if !ok {
		return 0, 0, fmt.Errorf("no %s client registered", platform)
	}
	rows, err := client.GetCampaignInsights(ctx, since)
	if err != nil {
		return 0, 0, fmt.Errorf("campaign insights: %w", err)
	}

	for _, row := range rows {
		c, err := s.campaignRepo.GetByExternalID(ctx, nil, platform, row.CampaignID)
		if err != nil {
			if !errors.Is(err, errs.ErrNotFound) {
				s.log.Error("campaign lookup failed", "platform", platform, "external_id", row.CampaignID, "error", err)
			}
			skipped++
			continue
		}

		fields := buildSyncFields(c, row)
		if len(fields) == 0 {
			continue
		}
		if err := s.campaignRepo.UpdateFields(ctx, nil, c.ID, fields); err != nil {
			s.log.Error("campaign sync persist failed", "campaign_id", c.ID, "error", err)
			continue
		}
		updated++
	}

	s.log.Info("platform sync complete", "platform", platform, "rows", len(rows), "updated", updated, "skipped", skipped)
	return updated, skipped, nil
}

// buildSyncFields keeps counters monotonically non-decreasing: a report
// window shorter than a campaign's lifetime under-reports, and those values
// are ignored per field rather than written backwards.
func buildSyncFields(c *types.Campaign, row adplatform.CampaignInsights) map[string]interface{} {
	fields := map[string]interface{}{}
	if row.CampaignName != "" && row.CampaignName != c.Name {
		fields["name"] = row.CampaignName
	}
	if row.Impressions > c.Impressions {
		fields["impressions"] = row.Impressions
	}
	if row.Clicks > c.Clicks {
		fields["clicks"] = row.Clicks
	}
	if row.Conversions > c.Conversions {
		fields["conversions"] = row.Conversions
	}

	spend, revenue := c.Spend, c.Revenue
	if row.Spend > c.Spend {
		spend = money.Round2(row.Spend)
		fields["spend"] = spend
	}
	if row.Revenue > c.Revenue {
		revenue = money.Round2(row.Revenue)
		fields["revenue"] = revenue
	}
	if len(fields) == 0 {
		return fields
	}

	roas := 0.0
	if spend > 0 {
		roas = money.Round2(revenue / spend)
	}
	fields["roas"] = roas
	return fields
}
