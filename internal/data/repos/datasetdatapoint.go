package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type DatasetDataPointRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, links []*domain.DatasetDataPoint) error
	GetByDatasetID(ctx context.Context, tx *gorm.DB, datasetID uuid.UUID) ([]*domain.DatasetDataPoint, error)
	GetByDataPointID(ctx context.Context, tx *gorm.DB, dataPointID uuid.UUID) (*domain.DatasetDataPoint, error)
}

type datasetDataPointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetDataPointRepo(db *gorm.DB, baseLog *logger.Logger) DatasetDataPointRepo {
	return &datasetDataPointRepo{db: db, log: baseLog.With("repo", "DatasetDataPointRepo")}
}

func (r *datasetDataPointRepo) CreateBatch(ctx context.Context, tx *gorm.DB, links []*domain.DatasetDataPoint) error {
	if len(links) == 0 {
		return nil
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(&links).Error
}

func (r *datasetDataPointRepo) GetByDatasetID(ctx context.Context, tx *gorm.DB, datasetID uuid.UUID) ([]*domain.DatasetDataPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.DatasetDataPoint
	if err := transaction.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("data_point_type").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetByDataPointID resolves the dataset a point belongs to. Points uploaded
// on their own have no link; that case returns nil without error.
func (r *datasetDataPointRepo) GetByDataPointID(ctx context.Context, tx *gorm.DB, dataPointID uuid.UUID) (*domain.DatasetDataPoint, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var link domain.DatasetDataPoint
	err := transaction.WithContext(ctx).
		Where("data_point_id = ?", dataPointID).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}
