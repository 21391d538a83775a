package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/autosem/autosem-backend/internal/pkg/envutil"
	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/pkg/money"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

type CreateCampaignRequest struct {
	Name         string   `json:"name"`
	Platform     string   `json:"platform,omitempty"`
	ExternalID   *string  `json:"external_id,omitempty"`
	CampaignType string   `json:"campaign_type,omitempty"`
	Status       string   `json:"status,omitempty"`
	DailyBudget  float64  `json:"daily_budget"`
	TargetCPA    *float64 `json:"target_cpa,omitempty"`
	TargetROAS   *float64 `json:"target_roas,omitempty"`
}

// UpdateCampaignRequest carries only the fields the caller wants to change.
type UpdateCampaignRequest struct {
	Name        *string  `json:"name,omitempty"`
	Status      *string  `json:"status,omitempty"`
	DailyBudget *float64 `json:"daily_budget,omitempty"`
	TargetCPA   *float64 `json:"target_cpa,omitempty"`
	TargetROAS  *float64 `json:"target_roas,omitempty"`
}

type CampaignService interface {
	Create(ctx context.Context, req CreateCampaignRequest) (*types.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Campaign, error)
	List(ctx context.Context, offset, limit int) ([]*types.Campaign, error)
	ListActive(ctx context.Context) ([]*types.Campaign, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateCampaignRequest) (*types.Campaign, error)
	Pause(ctx context.Context, id uuid.UUID) (*types.Campaign, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Cleanup(ctx context.Context) (int64, error)
}

type campaignService struct {
	campaignRepo repos.CampaignRepo
	executor     ActionExecutor
	audit        AuditService
	log          *logger.Logger
}

func NewCampaignService(campaignRepo repos.CampaignRepo, executor ActionExecutor, audit AuditService, baseLog *logger.Logger) CampaignService {
	return &campaignService{
		campaignRepo: campaignRepo,
		executor:     executor,
		audit:        audit,
		log:          baseLog.With("service", "CampaignService"),
	}
}

func (s *campaignService) Create(ctx context.Context, req CreateCampaignRequest) (*types.Campaign, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", errs.ErrInvalidArgument)
	}
	if req.DailyBudget <= 0 {
		return nil, fmt.Errorf("%w: daily_budget must be positive", errs.ErrInvalidArgument)
	}

	platform := types.PlatformMeta
	if req.Platform != "" {
		p, ok := types.ParsePlatform(req.Platform)
		if !ok {
			return nil, fmt.Errorf("%w: unknown platform %q", errs.ErrInvalidArgument, req.Platform)
		}
		platform = p
	}
	status := types.CampaignStatusActive
	if req.Status != "" {
		st, ok := types.ParseCampaignStatus(req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", errs.ErrInvalidArgument, req.Status)
		}
		status = st
	}

	campaign := &types.Campaign{
		Platform:     platform,
		ExternalID:   req.ExternalID,
		Name:         name,
		Status:       status,
		CampaignType: req.CampaignType,
		DailyBudget:  money.Round2(req.DailyBudget),
		TargetCPA:    req.TargetCPA,
		TargetROAS:   req.TargetROAS,
	}
	created, err := s.campaignRepo.Create(ctx, nil, []*types.Campaign{campaign})
	if err != nil {
		return nil, fmt.Errorf("persist campaign: %w", err)
	}
	out := created[0]

	s.audit.Record(ctx, AuditEntry{
		Action:     "campaign_created",
		EntityType: "campaign",
		EntityID:   out.ID.String(),
		Details:    fmt.Sprintf("%q on %s at $%.2f/day", out.Name, out.Platform, out.DailyBudget),
		Severity:   types.SeverityInfo,
	})
	s.log.Info("campaign created", "campaign_id", out.ID, "platform", out.Platform)
	return out, nil
}

func (s *campaignService) Get(ctx context.Context, id uuid.UUID) (*types.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, nil, id)
}

func (s *campaignService) List(ctx context.Context, offset, limit int) ([]*types.Campaign, error) {
	return s.campaignRepo.List(ctx, nil, offset, limit)
}

func (s *campaignService) ListActive(ctx context.Context) ([]*types.Campaign, error) {
	return s.campaignRepo.ListActive(ctx, nil)
}

func (s *campaignService) Update(ctx context.Context, id uuid.UUID, req UpdateCampaignRequest) (*types.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", errs.ErrInvalidArgument)
		}
		fields["name"] = name
	}
	if req.Status != nil {
		st, ok := types.ParseCampaignStatus(*req.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", errs.ErrInvalidArgument, *req.Status)
		}
		fields["status"] = st
	}
	if req.DailyBudget != nil {
		if *req.DailyBudget <= 0 {
			return nil, fmt.Errorf("%w: daily_budget must be positive", errs.ErrInvalidArgument)
		}
		fields["daily_budget"] = money.Round2(*req.DailyBudget)
	}
	if req.TargetCPA != nil {
		fields["target_cpa"] = *req.TargetCPA
	}
	if req.TargetROAS != nil {
		fields["target_roas"] = *req.TargetROAS
	}
	if len(fields) == 0 {
		return campaign, nil
	}

	if err := s.campaignRepo.UpdateFields(ctx, nil, id, fields); err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}

	s.audit.Record(ctx, AuditEntry{
		Action:     "campaign_updated",
		EntityType: "campaign",
		EntityID:   id.String(),
		Details:    fmt.Sprintf("%d field(s) changed", len(fields)),
		Severity:   types.SeverityInfo,
	})
	return s.campaignRepo.GetByID(ctx, nil, id)
}

// Pause stops a campaign by operator request: platform first, then the local
// record. The executor writes the audit trail for the platform attempt.
func (s *campaignService) Pause(ctx context.Context, id uuid.UUID) (*types.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == types.CampaignStatusPaused {
		return campaign, nil
	}

	s.executor.PauseCampaign(ctx, campaign)
	if err := s.campaignRepo.UpdateFields(ctx, nil, id, map[string]interface{}{
		"status": types.CampaignStatusPaused,
	}); err != nil {
		return nil, fmt.Errorf("persist pause: %w", err)
	}
	campaign.Status = types.CampaignStatusPaused
	return campaign, nil
}

func (s *campaignService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.campaignRepo.GetByID(ctx, nil, id); err != nil {
		return err
	}
	if err := s.campaignRepo.Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     "campaign_deleted",
		EntityType: "campaign",
		EntityID:   id.String(),
		Details:    "removed by operator",
		Severity:   types.SeverityInfo,
	})
	return nil
}

// Cleanup purges zero-traffic campaigns. Ids listed in PROTECTED_CAMPAIGN_IDS
// survive regardless, so seeded or about-to-launch campaigns are safe.
func (s *campaignService) Cleanup(ctx context.Context) (int64, error) {
	var protected []string
	for _, id := range strings.Split(envutil.String("PROTECTED_CAMPAIGN_IDS", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			protected = append(protected, id)
		}
	}

	deleted, err := s.campaignRepo.DeleteZombies(ctx, nil, protected)
	if err != nil {
		return 0, fmt.Errorf("cleanup campaigns: %w", err)
	}
	if deleted > 0 {
		s.audit.Record(ctx, AuditEntry{
			Action:     "campaigns_cleanup",
			EntityType: "account",
			Details:    fmt.Sprintf("purged %d zero-traffic campaigns", deleted),
			Severity:   types.SeverityInfo,
			Meta:       map[string]any{"deleted": deleted, "protected": len(protected)},
		})
	}
	s.log.Info("campaign cleanup complete", "deleted", deleted, "protected", len(protected))
	return deleted, nil
}
