package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// DatasetMetaSearchFilter narrows a metadata search. Zero values mean "any".
type DatasetMetaSearchFilter struct {
	CompanyID       uuid.UUID
	DataType        string
	ReportingPeriod string
	QaStatus        domain.QaStatus
	OnlyActive      bool
}

type DatasetMetaRepo interface {
	Create(ctx context.Context, tx *gorm.DB, meta *domain.DatasetMeta) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.DatasetMeta, error)
	GetActiveForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) (*domain.DatasetMeta, error)
	SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ClearActive(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ClearActiveForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) error
	UpdateQaStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.QaStatus) error
	Search(ctx context.Context, tx *gorm.DB, filter DatasetMetaSearchFilter) ([]*domain.DatasetMeta, error)
}

type datasetMetaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetMetaRepo(db *gorm.DB, baseLog *logger.Logger) DatasetMetaRepo {
	return &datasetMetaRepo{db: db, log: baseLog.With("repo", "DatasetMetaRepo")}
}

func (r *datasetMetaRepo) Create(ctx context.Context, tx *gorm.DB, meta *domain.DatasetMeta) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).Create(meta).Error
}

func (r *datasetMetaRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.DatasetMeta, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var meta domain.DatasetMeta
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&meta).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetActiveForKey returns nil without error when no dataset is active for
// the key; an empty key group is a normal state, not a lookup failure.
func (r *datasetMetaRepo) GetActiveForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) (*domain.DatasetMeta, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var meta domain.DatasetMeta
	err := transaction.WithContext(ctx).
		Where("company_id = ? AND data_type = ? AND reporting_period = ? AND active", key.CompanyID, key.DataType, key.ReportingPeriod).
		First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (r *datasetMetaRepo) SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.updateActive(ctx, tx, id, true)
}

func (r *datasetMetaRepo) ClearActive(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.updateActive(ctx, tx, id, false)
}

func (r *datasetMetaRepo) updateActive(ctx context.Context, tx *gorm.DB, id uuid.UUID, active bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.DatasetMeta{}).
		Where("id = ?", id).
		Update("active", active).Error
}

func (r *datasetMetaRepo) ClearActiveForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.DatasetMeta{}).
		Where("company_id = ? AND data_type = ? AND reporting_period = ? AND active", key.CompanyID, key.DataType, key.ReportingPeriod).
		Update("active", false).Error
}

func (r *datasetMetaRepo) UpdateQaStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.QaStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&domain.DatasetMeta{}).
		Where("id = ?", id).
		Update("qa_status", status).Error
}

func (r *datasetMetaRepo) Search(ctx context.Context, tx *gorm.DB, filter DatasetMetaSearchFilter) ([]*domain.DatasetMeta, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).Model(&domain.DatasetMeta{})
	if filter.CompanyID != uuid.Nil {
		q = q.Where("company_id = ?", filter.CompanyID)
	}
	if filter.DataType != "" {
		q = q.Where("data_type = ?", filter.DataType)
	}
	if filter.ReportingPeriod != "" {
		q = q.Where("reporting_period = ?", filter.ReportingPeriod)
	}
	if filter.QaStatus != "" {
		q = q.Where("qa_status = ?", filter.QaStatus)
	}
	if filter.OnlyActive {
		q = q.Where("active")
	}
	var results []*domain.DatasetMeta
	if err := q.Order("uploaded_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
