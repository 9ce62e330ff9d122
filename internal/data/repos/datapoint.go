package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type DataPointRepo interface {
	Create(ctx context.Context, tx *gorm.DB, point *domain.DataPoint) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.DataPoint, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.DataPoint, error)
	UpdateQaStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.QaStatus) error
	UpdateQaStatusBatch(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status domain.QaStatus) error
}

type dataPointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataPointRepo(db *gorm.DB, baseLog *logger.Logger) DataPointRepo {
	return &dataPointRepo{db: db, log: baseLog.With("repo", "DataPointRepo")}
}

func (r *dataPointRepo) Create(ctx context.Context, tx *gorm.DB, point *domain.DataPoint) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(point).Error
}

func (r *dataPointRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.DataPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var point domain.DataPoint
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&point).Error; err != nil {
		return nil, err
	}
	return &point, nil
}

// GetByIDs returns the points that exist; unknown ids are simply absent from
// the result. Callers must treat the returned slice as the source of truth.
func (r *dataPointRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.DataPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.DataPoint
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *dataPointRepo) UpdateQaStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.QaStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.DataPoint{}).
		Where("id = ?", id).
		Update("qa_status", status).Error
}

func (r *dataPointRepo) UpdateQaStatusBatch(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status domain.QaStatus) error {
	if len(ids) == 0 {
		return nil
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.DataPoint{}).
		Where("id IN ?", ids).
		Update("qa_status", status).Error
}
