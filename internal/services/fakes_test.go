package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/schema"
)

func newTestMetrics() *observability.Metrics {
	return &observability.Metrics{
		DatasetsStored:    observability.NewCounter("esg_datasets_stored_total", ""),
		DataPointsStored:  observability.NewCounter("esg_data_points_stored_total", ""),
		QaVerdictsApplied: observability.NewCounter("esg_qa_verdicts_applied_total", ""),
		ActiveSlotMoves:   observability.NewCounter("esg_active_slot_moves_total", ""),
		StagingEvictions:  observability.NewCounter("esg_staging_evictions_total", ""),
		QaQueueDepth:      observability.NewGauge("esg_qa_queue_depth", ""),
	}
}

type fakeMetaRepo struct {
	mu    sync.Mutex
	metas map[uuid.UUID]*domain.DatasetMeta
}

func newFakeMetaRepo() *fakeMetaRepo {
	return &fakeMetaRepo{metas: map[uuid.UUID]*domain.DatasetMeta{}}
}

func (r *fakeMetaRepo) Create(ctx context.Context, tx *gorm.DB, meta *domain.DatasetMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *meta
	r.metas[meta.ID] = &copied
	return nil
}

func (r *fakeMetaRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.DatasetMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta, ok := r.metas[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *meta
	return &copied, nil
}

func (r *fakeMetaRepo) GetActiveForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) (*domain.DatasetMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range r.metas {
		if meta.Active && meta.Key() == key {
			copied := *meta
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMetaRepo) SetActive(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if meta, ok := r.metas[id]; ok {
		meta.Active = true
	}
	return nil
}

func (r *fakeMetaRepo) ClearActive(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if meta, ok := r.metas[id]; ok {
		meta.Active = false
	}
	return nil
}

func (r *fakeMetaRepo) ClearActiveForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range r.metas {
		if meta.Key() == key {
			meta.Active = false
		}
	}
	return nil
}

func (r *fakeMetaRepo) UpdateQaStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.QaStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if meta, ok := r.metas[id]; ok {
		meta.QaStatus = status
	}
	return nil
}

func (r *fakeMetaRepo) Search(ctx context.Context, tx *gorm.DB, filter repos.DatasetMetaSearchFilter) ([]*domain.DatasetMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []*domain.DatasetMeta
	for _, meta := range r.metas {
		if filter.CompanyID != uuid.Nil && meta.CompanyID != filter.CompanyID {
			continue
		}
		if filter.DataType != "" && meta.DataType != filter.DataType {
			continue
		}
		if filter.ReportingPeriod != "" && meta.ReportingPeriod != filter.ReportingPeriod {
			continue
		}
		if filter.QaStatus != "" && meta.QaStatus != filter.QaStatus {
			continue
		}
		if filter.OnlyActive && !meta.Active {
			continue
		}
		copied := *meta
		results = append(results, &copied)
	}
	return results, nil
}

type fakePointRepo struct {
	mu     sync.Mutex
	points map[uuid.UUID]*domain.DataPoint
}

func newFakePointRepo() *fakePointRepo {
	return &fakePointRepo{points: map[uuid.UUID]*domain.DataPoint{}}
}

func (r *fakePointRepo) Create(ctx context.Context, tx *gorm.DB, point *domain.DataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *point
	r.points[point.ID] = &copied
	return nil
}

func (r *fakePointRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.DataPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	point, ok := r.points[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *point
	return &copied, nil
}

func (r *fakePointRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.DataPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []*domain.DataPoint
	for _, id := range ids {
		if point, ok := r.points[id]; ok {
			copied := *point
			results = append(results, &copied)
		}
	}
	return results, nil
}

// remove drops a point outright, simulating a row deleted out of band.
func (r *fakePointRepo) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.points, id)
}

func (r *fakePointRepo) UpdateQaStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status domain.QaStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if point, ok := r.points[id]; ok {
		point.QaStatus = status
	}
	return nil
}

func (r *fakePointRepo) UpdateQaStatusBatch(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status domain.QaStatus) error {
	for _, id := range ids {
		if err := r.UpdateQaStatus(ctx, tx, id, status); err != nil {
			return err
		}
	}
	return nil
}

type fakeLinkRepo struct {
	mu    sync.Mutex
	links []*domain.DatasetDataPoint
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{}
}

func (r *fakeLinkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, links []*domain.DatasetDataPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range links {
		copied := *link
		r.links = append(r.links, &copied)
	}
	return nil
}

func (r *fakeLinkRepo) GetByDatasetID(ctx context.Context, tx *gorm.DB, datasetID uuid.UUID) ([]*domain.DatasetDataPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []*domain.DatasetDataPoint
	for _, link := range r.links {
		if link.DatasetID == datasetID {
			copied := *link
			results = append(results, &copied)
		}
	}
	return results, nil
}

func (r *fakeLinkRepo) GetByDataPointID(ctx context.Context, tx *gorm.DB, dataPointID uuid.UUID) (*domain.DatasetDataPoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.links {
		if link.DataPointID == dataPointID {
			copied := *link
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeReportRepo struct {
	mu      sync.Mutex
	reports []*domain.ReferencedReport
}

func newFakeReportRepo() *fakeReportRepo {
	return &fakeReportRepo{}
}

func (r *fakeReportRepo) CreateBatch(ctx context.Context, tx *gorm.DB, reports []*domain.ReferencedReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, report := range reports {
		copied := *report
		r.reports = append(r.reports, &copied)
	}
	return nil
}

func (r *fakeReportRepo) GetByDatasetID(ctx context.Context, tx *gorm.DB, datasetID uuid.UUID) ([]*domain.ReferencedReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []*domain.ReferencedReport
	for _, report := range r.reports {
		if report.DatasetID == datasetID {
			copied := *report
			results = append(results, &copied)
		}
	}
	return results, nil
}

type fakeSourceabilityRepo struct {
	mu    sync.Mutex
	flags []*domain.SourceabilityFlag
}

func newFakeSourceabilityRepo() *fakeSourceabilityRepo {
	return &fakeSourceabilityRepo{}
}

func (r *fakeSourceabilityRepo) Create(ctx context.Context, tx *gorm.DB, flag *domain.SourceabilityFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *flag
	r.flags = append(r.flags, &copied)
	return nil
}

// LatestForKey returns the most recently appended row for the key; the
// fake relies on append order instead of timestamps.
func (r *fakeSourceabilityRepo) LatestForKey(ctx context.Context, tx *gorm.DB, key domain.DataKey) (*domain.SourceabilityFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.flags) - 1; i >= 0; i-- {
		flag := r.flags[i]
		if flag.CompanyID == key.CompanyID && flag.DataType == key.DataType && flag.ReportingPeriod == key.ReportingPeriod {
			copied := *flag
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSourceabilityRepo) GetByCompany(ctx context.Context, tx *gorm.DB, companyID uuid.UUID) ([]*domain.SourceabilityFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []*domain.SourceabilityFlag
	for _, flag := range r.flags {
		if flag.CompanyID == companyID {
			copied := *flag
			results = append(results, &copied)
		}
	}
	return results, nil
}

type fakeCatalog struct {
	specs map[string]*schema.FrameworkSpecification
	types map[string]bool
}

func (c *fakeCatalog) FrameworkSpecification(ctx context.Context, frameworkID string) (*schema.FrameworkSpecification, error) {
	spec, ok := c.specs[frameworkID]
	if !ok {
		return nil, schema.ErrSchemaNotFound
	}
	return spec, nil
}

func (c *fakeCatalog) ListFrameworks(ctx context.Context) ([]string, error) {
	var ids []string
	for id := range c.specs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *fakeCatalog) IsFramework(ctx context.Context, id string) bool {
	_, ok := c.specs[id]
	return ok
}

func (c *fakeCatalog) IsDataPointType(ctx context.Context, id string) bool {
	return c.types[id]
}
