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

type PlatformTokenRepo interface {
	GetByPlatform(ctx context.Context, tx *gorm.DB, platform types.Platform) (*types.PlatformToken, error)
	Upsert(ctx context.Context, tx *gorm.DB, token *types.PlatformToken) error
}

type platformTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlatformTokenRepo(db *gorm.DB, baseLog *logger.Logger) PlatformTokenRepo {
	repoLog := baseLog.With("repo", "PlatformTokenRepo")
	return &platformTokenRepo{db: db, log: repoLog}
}

func (pr *platformTokenRepo) GetByPlatform(ctx context.Context, tx *gorm.DB, platform types.Platform) (*types.PlatformToken, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	var result types.PlatformToken
	if err := transaction.WithContext(ctx).
		Where("platform = ?", platform).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	return &result, nil
}

func (pr *platformTokenRepo) Upsert(ctx context.Context, tx *gorm.DB, token *types.PlatformToken) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}

	token.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "token_type", "account_id", "expires_at", "updated_at"}),
		}).
		Create(token).Error
}
