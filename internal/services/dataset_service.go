package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
	"github.com/verdantis/esgdata-backend/internal/schema"
	"github.com/verdantis/esgdata-backend/internal/specwalk"
)

// publicationDateLayout is the wire format of report publication dates.
const publicationDateLayout = "2006-01-02"

// pointFetchChunk bounds how many data points one reassembly query loads.
const pointFetchChunk = 100

// DatasetPayload is a dataset read result: the metadata row plus the
// reassembled (or still staged) document.
type DatasetPayload struct {
	Meta *domain.DatasetMeta `json:"meta"`
	Data json.RawMessage     `json:"data"`
}

type DatasetService interface {
	StoreDataset(ctx context.Context, upload *domain.StorableDataset) (*domain.DatasetMeta, error)
	GetDataset(ctx context.Context, datasetID uuid.UUID) (*DatasetPayload, error)
	GetActiveDataset(ctx context.Context, key domain.DataKey) (*DatasetPayload, error)
	SearchMetadata(ctx context.Context, filter repos.DatasetMetaSearchFilter) ([]*domain.DatasetMeta, error)
}

type datasetService struct {
	db         *gorm.DB
	log        *logger.Logger
	catalog    schema.Catalog
	metaRepo   repos.DatasetMetaRepo
	pointRepo  repos.DataPointRepo
	linkRepo   repos.DatasetDataPointRepo
	reportRepo repos.ReferencedReportRepo
	staging    StagingStore
	bus        events.Bus
	metrics    *observability.Metrics
}

func NewDatasetService(
	db *gorm.DB,
	baseLog *logger.Logger,
	catalog schema.Catalog,
	metaRepo repos.DatasetMetaRepo,
	pointRepo repos.DataPointRepo,
	linkRepo repos.DatasetDataPointRepo,
	reportRepo repos.ReferencedReportRepo,
	staging StagingStore,
	bus events.Bus,
	metrics *observability.Metrics,
) DatasetService {
	return &datasetService{
		db:         db,
		log:        baseLog.With("service", "DatasetService"),
		catalog:    catalog,
		metaRepo:   metaRepo,
		pointRepo:  pointRepo,
		linkRepo:   linkRepo,
		reportRepo: reportRepo,
		staging:    staging,
		bus:        bus,
		metrics:    metrics,
	}
}

func (s *datasetService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// StoreDataset decomposes an uploaded framework document into its data
// points and persists metadata, points, the dataset-to-point mapping and the
// referenced report rows in one transaction. The raw document is staged for
// immediate reads and the QA notification goes out only after commit.
func (s *datasetService) StoreDataset(ctx context.Context, upload *domain.StorableDataset) (*domain.DatasetMeta, error) {
	if upload == nil || len(upload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidUpload)
	}
	spec, err := s.catalog.FrameworkSpecification(ctx, upload.DataType)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			return nil, fmt.Errorf("%w: unknown framework %s", ErrInvalidUpload, upload.DataType)
		}
		return nil, fmt.Errorf("fetch framework specification: %w", err)
	}

	template, err := specwalk.InsertReportsMarker(spec.Schema, spec.ReferencedReportPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	leaves, err := specwalk.Split(template, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	declared, err := specwalk.ParseReports(leaves[specwalk.ReferencedReportsID].Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	observed := map[string]struct{}{}
	for dataPointType, leaf := range leaves {
		if dataPointType == specwalk.ReferencedReportsID || specwalk.IsEmptyContent(leaf.Content) {
			continue
		}
		if report, ok := specwalk.ReportFromDataSource(leaf.Content); ok {
			observed[report.FileReference] = struct{}{}
		}
	}
	if err := specwalk.ValidateReportConsistency(declared, observed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	declaredByRef := map[string]specwalk.Report{}
	for _, report := range declared {
		declaredByRef[report.FileReference] = report
	}

	uploadedAt := upload.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	meta := &domain.DatasetMeta{
		ID:              uuid.New(),
		CompanyID:       upload.CompanyID,
		DataType:        upload.DataType,
		ReportingPeriod: upload.ReportingPeriod,
		QaStatus:        domain.QaStatusPending,
		UploaderUserID:  upload.UploaderUserID,
		UploadedAt:      uploadedAt,
	}

	var points []*domain.DataPoint
	var links []*domain.DatasetDataPoint
	for dataPointType, leaf := range leaves {
		if specwalk.IsEmptyContent(leaf.Content) {
			continue
		}
		content, err := specwalk.StampReportMetadata(leaf.Content, declaredByRef)
		if err != nil {
			return nil, fmt.Errorf("stamp report metadata on %s: %w", dataPointType, err)
		}
		point := &domain.DataPoint{
			ID:              uuid.New(),
			DataPointType:   dataPointType,
			CompanyID:       upload.CompanyID,
			ReportingPeriod: upload.ReportingPeriod,
			Content:         datatypes.JSON(content),
			QaStatus:        domain.QaStatusPending,
			UploaderUserID:  upload.UploaderUserID,
			UploadedAt:      uploadedAt,
		}
		points = append(points, point)
		links = append(links, &domain.DatasetDataPoint{
			DatasetID:     meta.ID,
			DataPointType: dataPointType,
			DataPointID:   point.ID,
		})
	}

	reportRows, err := buildReportRows(meta.ID, declared)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}

	if err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.metaRepo.Create(ctx, tx, meta); err != nil {
			return fmt.Errorf("create dataset meta: %w", err)
		}
		for _, point := range points {
			if err := s.pointRepo.Create(ctx, tx, point); err != nil {
				return fmt.Errorf("create data point %s: %w", point.DataPointType, err)
			}
		}
		if err := s.linkRepo.CreateBatch(ctx, tx, links); err != nil {
			return fmt.Errorf("create dataset mapping: %w", err)
		}
		if err := s.reportRepo.CreateBatch(ctx, tx, reportRows); err != nil {
			return fmt.Errorf("create referenced reports: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DatasetsStored.Inc()
		s.metrics.DataPointsStored.Add(float64(len(points)))
	}

	if err := s.staging.Put(ctx, meta.ID, upload.Data); err != nil {
		s.log.Warn("staging write failed, reads fall back to reassembly", "datasetId", meta.ID, "error", err)
	}

	s.publishStored(ctx, meta)
	s.log.Info("stored dataset",
		"datasetId", meta.ID,
		"dataKey", meta.Key().String(),
		"dataPoints", len(points),
		"correlationId", ctxutil.CorrelationID(ctx))
	return meta, nil
}

func buildReportRows(datasetID uuid.UUID, declared map[string]specwalk.Report) ([]*domain.ReferencedReport, error) {
	var rows []*domain.ReferencedReport
	for fileName, report := range declared {
		row := &domain.ReferencedReport{
			ID:            uuid.New(),
			DatasetID:     datasetID,
			FileReference: report.FileReference,
			FileName:      fileName,
		}
		if report.PublicationDate != "" {
			date, err := time.Parse(publicationDateLayout, report.PublicationDate)
			if err != nil {
				return nil, fmt.Errorf("report %q has malformed publication date %q", fileName, report.PublicationDate)
			}
			row.PublicationDate = &date
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// publishAttempts bounds how often a post-commit event publish is retried.
// A bypass acceptance in particular must reach the activation consumer or
// the dataset stays Pending with no reviewer in the loop.
const publishAttempts = 3

func publishWithRetry(ctx context.Context, bus events.Bus, topic string, env events.Envelope) error {
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err = bus.Publish(ctx, topic, env); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

func (s *datasetService) publishStored(ctx context.Context, meta *domain.DatasetMeta) {
	user := ctxutil.GetRequestUser(ctx)
	bypassQa := user != nil && user.BypassQa
	correlationID := ctxutil.CorrelationID(ctx)

	env, err := events.NewEnvelope(events.TypeDatasetStored, correlationID, events.StoredPayload{
		ItemID:          meta.ID,
		CompanyID:       meta.CompanyID,
		DataType:        meta.DataType,
		ReportingPeriod: meta.ReportingPeriod,
		UploaderUserID:  meta.UploaderUserID,
		BypassQa:        bypassQa,
	})
	if err == nil {
		err = publishWithRetry(ctx, s.bus, events.TypeDatasetStored, env)
	}
	if err != nil {
		s.log.Error("publish dataset stored failed", "datasetId", meta.ID, "error", err)
		return
	}

	if bypassQa {
		activeID := meta.ID
		env, err := events.NewEnvelope(events.TypeQaStatusChanged, correlationID, events.QaStatusChangedPayload{
			ItemID:                meta.ID,
			NewStatus:             domain.QaStatusAccepted,
			CurrentlyActiveItemID: &activeID,
		})
		if err == nil {
			err = publishWithRetry(ctx, s.bus, events.TypeQaStatusChanged, env)
		}
		if err != nil {
			s.log.Error("publish qa bypass acceptance failed", "datasetId", meta.ID, "error", err)
		}
	}
}

// GetDataset returns the dataset document, from staging while the upload is
// still in flight and reassembled from stored data points afterwards.
func (s *datasetService) GetDataset(ctx context.Context, datasetID uuid.UUID) (*DatasetPayload, error) {
	meta, err := s.metaRepo.GetByID(ctx, nil, datasetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, datasetID)
		}
		return nil, fmt.Errorf("load dataset meta: %w", err)
	}

	if staged, err := s.staging.Get(ctx, datasetID); err != nil {
		s.log.Warn("staging read failed, falling back to reassembly", "datasetId", datasetID, "error", err)
	} else if staged != nil {
		return &DatasetPayload{Meta: meta, Data: staged}, nil
	}

	data, err := s.reassemble(ctx, meta)
	if err != nil {
		return nil, err
	}
	return &DatasetPayload{Meta: meta, Data: data}, nil
}

func (s *datasetService) reassemble(ctx context.Context, meta *domain.DatasetMeta) (json.RawMessage, error) {
	spec, err := s.catalog.FrameworkSpecification(ctx, meta.DataType)
	if err != nil {
		return nil, fmt.Errorf("fetch framework specification: %w", err)
	}
	template, err := specwalk.InsertReportsMarker(spec.Schema, spec.ReferencedReportPath)
	if err != nil {
		return nil, fmt.Errorf("prepare framework template: %w", err)
	}

	links, err := s.linkRepo.GetByDatasetID(ctx, nil, meta.ID)
	if err != nil {
		return nil, fmt.Errorf("load dataset mapping: %w", err)
	}

	contentByType, err := s.fetchPointContents(ctx, links)
	if err != nil {
		return nil, err
	}
	return specwalk.Assemble(template, func(dataPointType string) json.RawMessage {
		return contentByType[dataPointType]
	})
}

// fetchPointContents loads the dataset's points in parallel chunks. The
// lookup table is keyed by data point type, which is unique per dataset.
func (s *datasetService) fetchPointContents(ctx context.Context, links []*domain.DatasetDataPoint) (map[string]json.RawMessage, error) {
	typeByID := make(map[uuid.UUID]string, len(links))
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		typeByID[link.DataPointID] = link.DataPointType
		ids = append(ids, link.DataPointID)
	}

	contentByType := make(map[string]json.RawMessage, len(ids))
	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(ids); start += pointFetchChunk {
		end := start + pointFetchChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		group.Go(func() error {
			points, err := s.pointRepo.GetByIDs(groupCtx, nil, chunk)
			if err != nil {
				return fmt.Errorf("load data points: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, point := range points {
				contentByType[typeByID[point.ID]] = json.RawMessage(point.Content)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return contentByType, nil
}

func (s *datasetService) GetActiveDataset(ctx context.Context, key domain.DataKey) (*DatasetPayload, error) {
	meta, err := s.metaRepo.GetActiveForKey(ctx, nil, key)
	if err != nil {
		return nil, fmt.Errorf("load active dataset: %w", err)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: no active dataset for %s", ErrNotFound, key)
	}
	data, err := s.reassemble(ctx, meta)
	if err != nil {
		return nil, err
	}
	return &DatasetPayload{Meta: meta, Data: data}, nil
}

func (s *datasetService) SearchMetadata(ctx context.Context, filter repos.DatasetMetaSearchFilter) ([]*domain.DatasetMeta, error) {
	return s.metaRepo.Search(ctx, nil, filter)
}
