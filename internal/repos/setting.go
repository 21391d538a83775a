package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/types"
)

type SettingRepo interface {
	List(ctx context.Context, tx *gorm.DB) ([]*types.Setting, error)
	Get(ctx context.Context, tx *gorm.DB, key string) (*types.Setting, error)
	Upsert(ctx context.Context, tx *gorm.DB, key, value string) error
}

type settingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingRepo(db *gorm.DB, baseLog *logger.Logger) SettingRepo {
	repoLog := baseLog.With("repo", "SettingRepo")
	return &settingRepo{db: db, log: repoLog}
}

func (sr *settingRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Setting, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var results []*types.Setting
	if err := transaction.WithContext(ctx).
		Order("key ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (sr *settingRepo) Get(ctx context.Context, tx *gorm.DB, key string) (*types.Setting, error) {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	var result types.Setting
	if err := transaction.WithContext(ctx).
		Where("key = ?", key).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (sr *settingRepo) Upsert(ctx context.Context, tx *gorm.DB, key, value string) error {
	transaction := tx
	if transaction == nil {
		transaction = sr.db
	}

	setting := types.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
}
