package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/types"
)

type ActivityLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entries []*types.ActivityLog) ([]*types.ActivityLog, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ActivityLog, error)
	ListByEntity(ctx context.Context, tx *gorm.DB, entityType, entityID string, limit int) ([]*types.ActivityLog, error)
}

type activityLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityLogRepo(db *gorm.DB, baseLog *logger.Logger) ActivityLogRepo {
	repoLog := baseLog.With("repo", "ActivityLogRepo")
	return &activityLogRepo{db: db, log: repoLog}
}

func (ar *activityLogRepo) Create(ctx context.Context, tx *gorm.DB, entries []*types.ActivityLog) ([]*types.ActivityLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	if len(entries) == 0 {
		return []*types.ActivityLog{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&entries).Error; err != nil {
		return nil, err
	}

	return entries, nil
}

func (ar *activityLogRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ActivityLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	if limit <= 0 {
		limit = 50
	}

	var results []*types.ActivityLog
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (ar *activityLogRepo) ListByEntity(ctx context.Context, tx *gorm.DB, entityType, entityID string, limit int) ([]*types.ActivityLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = ar.db
	}

	if limit <= 0 {
		limit = 50
	}

	var results []*types.ActivityLog
	if err := transaction.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}
