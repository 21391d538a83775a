package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autosem/autosem-backend/internal/pkg/errs"
	"github.com/autosem/autosem-backend/internal/pkg/logger"
	"github.com/autosem/autosem-backend/internal/types"
)

type ABTestRepo interface {
	Create(ctx context.Context, tx *gorm.DB, tests []*types.ABTest) ([]*types.ABTest, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ABTest, error)
	ListRunning(ctx context.Context, tx *gorm.DB) ([]*types.ABTest, error)
	List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.ABTest, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	// Complete transitions a running test to its final status exactly once.
	// It reports false when the test was already completed by someone else.
	Complete(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error)
}

type abTestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewABTestRepo(db *gorm.DB, baseLog *logger.Logger) ABTestRepo {
	repoLog := baseLog.With("repo", "ABTestRepo")
	return &abTestRepo{db: db, log: repoLog}
}

func (tr *abTestRepo) Create(ctx context.Context, tx *gorm.DB, tests []*types.ABTest) ([]*types.ABTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if len(tests) == 0 {
		return []*types.ABTest{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&tests).Error; err != nil {
		return nil, err
	}

	return tests, nil
}

func (tr *abTestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ABTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var result types.ABTest
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

func (tr *abTestRepo) ListRunning(ctx context.Context, tx *gorm.DB) ([]*types.ABTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	var results []*types.ABTest
	if err := transaction.WithContext(ctx).
		Where("status = ?", types.ABTestStatusRunning).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (tr *abTestRepo) List(ctx context.Context, tx *gorm.DB, offset, limit int) ([]*types.ABTest, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if limit <= 0 {
		limit = 100
	}

	var results []*types.ABTest
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func (tr *abTestRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if len(fields) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.ABTest{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (tr *abTestRepo) Complete(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = tr.db
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}
	if _, ok := fields["completed_at"]; !ok {
		fields["completed_at"] = time.Now().UTC()
	}

	res := transaction.WithContext(ctx).
		Model(&types.ABTest{}).
		Where("id = ? AND status = ?", id, types.ABTestStatusRunning).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}
