package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type ReferencedReportRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, reports []*domain.ReferencedReport) error
	GetByDatasetID(ctx context.Context, tx *gorm.DB, datasetID uuid.UUID) ([]*domain.ReferencedReport, error)
}

type referencedReportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReferencedReportRepo(db *gorm.DB, baseLog *logger.Logger) ReferencedReportRepo {
	return &referencedReportRepo{db: db, log: baseLog.With("repo", "ReferencedReportRepo")}
}

func (r *referencedReportRepo) CreateBatch(ctx context.Context, tx *gorm.DB, reports []*domain.ReferencedReport) error {
	if len(reports) == 0 {
		return nil
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(&reports).Error
}

func (r *referencedReportRepo) GetByDatasetID(ctx context.Context, tx *gorm.DB, datasetID uuid.UUID) ([]*domain.ReferencedReport, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.ReferencedReport
	if err := transaction.WithContext(ctx).
		Where("dataset_id = ?", datasetID).
		Order("file_name").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
