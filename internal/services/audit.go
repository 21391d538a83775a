package services

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/repos"
	"github.com/autosem/autosem-backend/internal/types"
)

type AuditEntry struct {
	Action     string
	EntityType string
	EntityID   string
	Details    string
	Severity   types.Severity
	Meta       map[string]any
}

// AuditService appends to the activity log. Recording never fails the caller:
// an audit write error is logged and swallowed so a broken log table cannot
// take the engine down with it.
type AuditService interface {
	Record(ctx context.Context, entry AuditEntry)
	Recent(ctx context.Context, limit int) ([]*types.ActivityLog, error)
	ForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*types.ActivityLog, error)
}

type auditService struct {
	activityRepo repos.ActivityLogRepo
	log          *logger.Logger
}

func NewAuditService(activityRepo repos.ActivityLogRepo, baseLog *logger.Logger) AuditService {
	return &auditService{
		activityRepo: activityRepo,
		log:          baseLog.With("service", "AuditService"),
	}
}

func (a *auditService) Record(ctx context.Context, entry AuditEntry) {
	if entry.Action == "" {
		return
	}
	if entry.Severity == "" {
		entry.Severity = types.SeverityInfo
	}

	row := &types.ActivityLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Details:    entry.Details,
		Severity:   entry.Severity,
	}
	if len(entry.Meta) > 0 {
		if raw, err := json.Marshal(entry.Meta); err == nil {
			row.Meta = datatypes.JSON(raw)
		}
	}

	if _, err := a.activityRepo.Create(ctx, nil, []*types.ActivityLog{row}); err != nil {
		a.log.Error("failed to record activity", "action", entry.Action, "error", err)
	}
}

func (a *auditService) Recent(ctx context.Context, limit int) ([]*types.ActivityLog, error) {
	return a.activityRepo.ListRecent(ctx, nil, limit)
}

func (a *auditService) ForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*types.ActivityLog, error) {
	return a.activityRepo.ListByEntity(ctx, nil, entityType, entityID, limit)
}
