package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type SourceabilityRepo interface {
	Create(ctx context.Context, tx *gorm.DB, flag *domain.SourceabilityFlag) error
	LatestForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) (*domain.SourceabilityFlag, error)
	GetByCompany(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) ([]*domain.SourceabilityFlag, error)
}

type sourceabilityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceabilityRepo(db *gorm.DB, baseLog *logger.Logger) SourceabilityRepo {
	return &sourceabilityRepo{db: db, log: baseLog.With("repo", "SourceabilityRepo")}
}

func (r *sourceabilityRepo) Create(ctx context.Context, tx *gorm.DB, flag *domain.SourceabilityFlag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(flag).Error
}

func (r *sourceabilityRepo) LatestForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) (*domain.SourceabilityFlag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var flag domain.SourceabilityFlag
	err := transaction.WithContext(ctx).
		Where("company_id = ? AND data_type = ? AND reporting_period = ?", key.CompanyID, key.DataType, key.ReportingPeriod).
		Order("created_at DESC").
		First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &flag, nil
}

func (r *sourceabilityRepo) GetByCompany(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) ([]*domain.SourceabilityFlag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.SourceabilityFlag
	if err := transaction.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
