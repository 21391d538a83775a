package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/types"
)

type CampaignRepo interface {
	Create(ctx context.Context, tx *gorm.DB, campaigns []*types.Campaign) ([]*types.Campaign, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Campaign, error)
	GetByExternalID(ctx context.Context, tx *gorm.DB, platform types.Platform, externalID string) (*types.Campaign, error)
	List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.Campaign, error)
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Campaign, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	DeleteZombies(ctx context.Context, tx *gorm.DB, protectedExternalIDs []string) (int64, error)
}

type campaignRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCampaignRepo(db *gorm.DB, baseLog *logger.Logger) CampaignRepo {
	repoLog := baseLog.With("repo", "CampaignRepo")
	return &campaignRepo{db: db, log: repoLog}
}

func (cr *campaignRepo) Create(ctx context.Context, tx *gorm.DB, campaigns []*types.Campaign) ([]*types.Campaign, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if len(campaigns) == 0 {
		return []*types.Campaign{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&campaigns).Error; err != nil {
		return nil, err
	}

	return campaigns, nil
}

func (cr *campaignRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Campaign, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var result types.Campaign
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (cr *campaignRepo) GetByExternalID(ctx context.Context, tx *gorm.DB, platform types.Platform, externalID string) (*types.Campaign, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var result types.Campaign
	if err := transaction.WithContext(ctx).
		Where("platform = ? AND external_id = ?", platform, externalID).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (cr *campaignRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.Campaign, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if limit <= 0 {
		limit = 100
	}

	var results []*types.Campaign
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (cr *campaignRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Campaign, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var results []*types.Campaign
	if err := transaction.WithContext(ctx).
		Where("status = ?", types.CampaignStatusActive).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (cr *campaignRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Campaign{}).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}

func (cr *campaignRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	if len(fields) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.Campaign{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (cr *campaignRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.Campaign{}).Error
}

// DeleteZombies purges campaigns that never produced traffic: zero spend,
// zero clicks, zero impressions. Campaigns whose external id is in the
// protected list are kept regardless.
func (cr *campaignRepo) DeleteZombies(ctx context.Context, tx *gorm.DB, protectedExternalIDs []string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	query := transaction.WithContext(ctx).
		Where("spend = 0 AND clicks = 0 AND impressions = 0")
	if len(protectedExternalIDs) > 0 {
		query = query.Where("external_id IS NULL OR external_id NOT IN ?", protectedExternalIDs)
	}

	res := query.Delete(&types.Campaign{})
	if res.Error != nil {
		return 0, res.Error
	}

	return res.RowsAffected, nil
}
