// Package adplatform defines the boundary between the optimization engine and
// the ad networks. Each network implements Client; the engine only ever talks
// to the Registry, so an unconfigured platform simply isn't there.
package adplatform

import (
	"context"
	"time"

	"github.com/autosem/autosem-backend/internal/types"
)

// Insights are the raw counters for a single ad.
type Insights struct {
	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
}

// CampaignInsights are per-campaign performance rows used by the sync job.
// Spend and Revenue are dollars.
type CampaignInsights struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"revenue"`
	Conversions  int64   `json:"conversions"`
}

// Client wraps one ad network's management API. All budget amounts cross this
// boundary as integer cents. Implementations retry transient failures
// internally; callers treat a returned error as final.
type Client interface {
	Platform() types.Platform
	PauseCampaign(ctx context.Context, externalID string) error
	SetCampaignBudget(ctx context.Context, externalID string, cents int64) error
	PauseAdSet(ctx context.Context, adSetID string) error
	SetAdSetBudget(ctx context.Context, adSetID string, cents int64) error
	GetAdSetBudget(ctx context.Context, adSetID string) (int64, error)
	GetAdInsights(ctx context.Context, adID string, since time.Time) (*Insights, error)
	GetCampaignInsights(ctx context.Context, since time.Time) ([]CampaignInsights, error)
}
