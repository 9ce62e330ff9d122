package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
	"github.com/verdantis/esgdata-backend/internal/schema"
)

type DataPointService interface {
	StoreDataPoint(ctx context.Context, upload *domain.UploadedDataPoint) (*domain.DataPoint, error)
	GetDataPoint(ctx context.Context, id uuid.UUID) (*domain.DataPoint, error)
	GetDataPointBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DataPoint, error)
}

type dataPointService struct {
	db        *gorm.DB
	log       *logger.Logger
	catalog   schema.Catalog
	pointRepo repos.DataPointRepo
	staging   StagingStore
	bus       events.Bus
	metrics   *observability.Metrics
}

func NewDataPointService(
	db *gorm.DB,
	baseLog *logger.Logger,
	catalog schema.Catalog,
	pointRepo repos.DataPointRepo,
	staging StagingStore,
	bus events.Bus,
	metrics *observability.Metrics,
) DataPointService {
	return &dataPointService{
		db:        db,
		log:       baseLog.With("service", "DataPointService"),
		catalog:   catalog,
		pointRepo: pointRepo,
		staging:   staging,
		bus:       bus,
		metrics:   metrics,
	}
}

// StoreDataPoint persists a single data point uploaded outside any dataset.
// The point enters the QA lifecycle the same way a dataset does, but has no
// active slot; acceptance only flips its status.
func (s *dataPointService) StoreDataPoint(ctx context.Context, upload *domain.UploadedDataPoint) (*domain.DataPoint, error) {
	if upload == nil || len(upload.Content) == 0 {
		return nil, fmt.Errorf("%w: empty data point", ErrInvalidUpload)
	}
	if !json.Valid(upload.Content) {
		return nil, fmt.Errorf("%w: data point content is not valid JSON", ErrInvalidUpload)
	}
	if !s.catalog.IsDataPointType(ctx, upload.DataPointType) {
		return nil, fmt.Errorf("%w: unknown data point type %s", ErrInvalidUpload, upload.DataPointType)
	}

	user := ctxutil.GetRequestUser(ctx)
	var uploaderID uuid.UUID
	if user != nil {
		uploaderID = user.UserID
	}
	point := &domain.DataPoint{
		ID:              uuid.New(),
		DataPointType:   upload.DataPointType,
		CompanyID:       upload.CompanyID,
		ReportingPeriod: upload.ReportingPeriod,
		Content:         datatypes.JSON(upload.Content),
		QaStatus:        domain.QaStatusPending,
		UploaderUserID:  uploaderID,
		UploadedAt:      time.Now().UTC(),
	}
	if err := s.pointRepo.Create(ctx, nil, point); err != nil {
		return nil, fmt.Errorf("create data point: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DataPointsStored.Inc()
	}

	if err := s.staging.Put(ctx, point.ID, upload.Content); err != nil {
		s.log.Warn("staging write failed", "dataPointId", point.ID, "error", err)
	}
	s.publishStored(ctx, point)
	s.log.Info("stored data point",
		"dataPointId", point.ID,
		"dataPointType", point.DataPointType,
		"correlationId", ctxutil.CorrelationID(ctx))
	return point, nil
}

func (s *dataPointService) publishStored(ctx context.Context, point *domain.DataPoint) {
	user := ctxutil.GetRequestUser(ctx)
	bypassQa := user != nil && user.BypassQa
	correlationID := ctxutil.CorrelationID(ctx)

	env, err := events.NewEnvelope(events.TypeDataPointStored, correlationID, events.StoredPayload{
		ItemID:          point.ID,
		CompanyID:       point.CompanyID,
		DataType:        point.DataPointType,
		ReportingPeriod: point.ReportingPeriod,
		UploaderUserID:  point.UploaderUserID,
		BypassQa:        bypassQa,
	})
	if err == nil {
		err = publishWithRetry(ctx, s.bus, events.TypeDataPointStored, env)
	}
	if err != nil {
		s.log.Error("publish data point stored failed", "dataPointId", point.ID, "error", err)
		return
	}

	if bypassQa {
		env, err := events.NewEnvelope(events.TypeQaStatusChanged, correlationID, events.QaStatusChangedPayload{
			ItemID:    point.ID,
			NewStatus: domain.QaStatusAccepted,
		})
		if err == nil {
			err = publishWithRetry(ctx, s.bus, events.TypeQaStatusChanged, env)
		}
		if err != nil {
			s.log.Error("publish qa bypass acceptance failed", "dataPointId", point.ID, "error", err)
		}
	}
}

func (s *dataPointService) GetDataPoint(ctx context.Context, id uuid.UUID) (*domain.DataPoint, error) {
	point, err := s.pointRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: data point %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load data point: %w", err)
	}
	// Prefer the staged payload while the verdict is still in flight.
	if staged, err := s.staging.Get(ctx, id); err != nil {
		s.log.Warn("staging read failed", "dataPointId", id, "error", err)
	} else if staged != nil {
		point.Content = datatypes.JSON(staged)
	}
	return point, nil
}

func (s *dataPointService) GetDataPointBatch(ctx context.Context, ids []uuid.UUID) ([]*domain.DataPoint, error) {
	return s.pointRepo.GetByIDs(ctx, nil, ids)
}
