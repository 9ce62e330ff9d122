package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// errVerdictInvalid marks a verdict that can never be applied, as opposed
// to one that raced the upload it refers to. Invalid verdicts dead letter
// instead of requeueing.
var errVerdictInvalid = errors.New("invalid qa verdict")

// ActivationService applies QA verdicts. For each verdict it updates the
// item's QA status, moves the single active slot of the item's data key, and
// confirms the durable commit with an item-persisted message. Handlers are
// idempotent: replaying a verdict reapplies the same terminal state.
type ActivationService interface {
	HandleQaStatusChanged(ctx context.Context, correlationID string, verdict events.QaStatusChangedPayload) error
	ResolveDataKey(ctx context.Context, itemID uuid.UUID) (domain.DataKey, bool, error)
}

type activationService struct {
	db        *gorm.DB
	log       *logger.Logger
	metaRepo  repos.DatasetMetaRepo
	pointRepo repos.DataPointRepo
	linkRepo  repos.DatasetDataPointRepo
	srcRepo   repos.SourceabilityRepo
	bus       events.Bus
	metrics   *observability.Metrics
}

func NewActivationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	metaRepo repos.DatasetMetaRepo,
	pointRepo repos.DataPointRepo,
	linkRepo repos.DatasetDataPointRepo,
	srcRepo repos.SourceabilityRepo,
	bus events.Bus,
	metrics *observability.Metrics,
) ActivationService {
	return &activationService{
		db:        db,
		log:       baseLog.With("service", "ActivationService"),
		metaRepo:  metaRepo,
		pointRepo: pointRepo,
		linkRepo:  linkRepo,
		srcRepo:   srcRepo,
		bus:       bus,
		metrics:   metrics,
	}
}

func (s *activationService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// ResolveDataKey maps an item id to its data key without taking a
// transaction, so the consumer can pick the serialization lane before the
// real work starts. The bool result distinguishes datasets from standalone
// data points.
func (s *activationService) ResolveDataKey(ctx context.Context, itemID uuid.UUID) (domain.DataKey, bool, error) {
	meta, err := s.metaRepo.GetByID(ctx, nil, itemID)
	if err == nil {
		return meta.Key(), true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DataKey{}, false, fmt.Errorf("resolve dataset %s: %w", itemID, err)
	}

	point, err := s.pointRepo.GetByID(ctx, nil, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DataKey{}, false, events.Retryable(fmt.Errorf("unknown item %s", itemID))
		}
		return domain.DataKey{}, false, fmt.Errorf("resolve data point %s: %w", itemID, err)
	}
	// Standalone points have no framework; the point type scopes the lane.
	return domain.DataKey{
		CompanyID:       point.CompanyID,
		DataType:        point.DataPointType,
		ReportingPeriod: point.ReportingPeriod,
	}, false, nil
}

func (s *activationService) HandleQaStatusChanged(ctx context.Context, correlationID string, verdict events.QaStatusChangedPayload) error {
	if !verdict.NewStatus.Valid() {
		return fmt.Errorf("%w: unknown qa status %q for item %s", errVerdictInvalid, verdict.NewStatus, verdict.ItemID)
	}
	log := s.log.With("itemId", verdict.ItemID, "newStatus", verdict.NewStatus, "correlationId", correlationID)

	meta, err := s.metaRepo.GetByID(ctx, nil, verdict.ItemID)
	switch {
	case err == nil:
		if err := s.applyDatasetVerdict(ctx, log, meta, verdict); err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.applyPointVerdict(ctx, log, verdict); err != nil {
			return err
		}
	default:
		return events.Retryable(fmt.Errorf("load dataset meta: %w", err))
	}

	s.publishPersisted(ctx, correlationID, verdict.ItemID, log)
	return nil
}

// applyDatasetVerdict runs the whole verdict in one transaction: QA status
// on the metadata row, cascade to the constituent points, then the active
// slot move. Deactivation always precedes activation so the partial unique
// index on (key, active) never sees two active rows.
func (s *activationService) applyDatasetVerdict(ctx context.Context, log *logger.Logger, meta *domain.DatasetMeta, verdict events.QaStatusChangedPayload) error {
	key := meta.Key()
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		if err := s.metaRepo.UpdateQaStatus(ctx, tx, meta.ID, verdict.NewStatus); err != nil {
			return fmt.Errorf("update dataset qa status: %w", err)
		}
		links, err := s.linkRepo.GetByDatasetID(ctx, tx, meta.ID)
		if err != nil {
			return fmt.Errorf("load dataset mapping: %w", err)
		}
		pointIDs := make([]uuid.UUID, 0, len(links))
		for _, link := range links {
			pointIDs = append(pointIDs, link.DataPointID)
		}
		if err := s.pointRepo.UpdateQaStatusBatch(ctx, tx, pointIDs, verdict.NewStatus); err != nil {
			return fmt.Errorf("cascade qa status to data points: %w", err)
		}

		activated, err := s.moveActiveSlot(ctx, tx, log, key, meta.ID, verdict)
		if err != nil {
			return err
		}
		if activated {
			if err := s.clearNonSourceable(ctx, tx, key, meta.UploaderUserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errVerdictInvalid) {
			return err
		}
		return events.Retryable(err)
	}
	if s.metrics != nil {
		s.metrics.QaVerdictsApplied.Inc()
	}
	log.Info("applied dataset verdict", "dataKey", key.String())
	return nil
}

// moveActiveSlot reconciles the key group with the verdict's nomination.
// Returns whether the verdict's own item ended up newly active.
func (s *activationService) moveActiveSlot(ctx context.Context, tx *gorm.DB, log *logger.Logger, key domain.DataKey, itemID uuid.UUID, verdict events.QaStatusChangedPayload) (bool, error) {
	current, err := s.metaRepo.GetActiveForKey(ctx, tx, key)
	if err != nil {
		return false, fmt.Errorf("load active dataset: %w", err)
	}

	if verdict.CurrentlyActiveItemID == nil {
		if current != nil {
			log.Warn("verdict nominates no active dataset, deactivating key group", "dataKey", key.String(), "deactivated", current.ID)
		}
		if err := s.metaRepo.ClearActiveForKey(ctx, tx, key); err != nil {
			return false, fmt.Errorf("deactivate key group: %w", err)
		}
		return false, nil
	}

	nominatedID := *verdict.CurrentlyActiveItemID
	nominated, err := s.metaRepo.GetByID(ctx, tx, nominatedID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: nominated active dataset %s does not exist", errVerdictInvalid, nominatedID)
		}
		return false, fmt.Errorf("load nominated dataset: %w", err)
	}
	if nominated.Key() != key {
		return false, fmt.Errorf("%w: nominated dataset %s belongs to %s, not %s", errVerdictInvalid, nominatedID, nominated.Key(), key)
	}

	nominatedStatus := nominated.QaStatus
	if nominatedID == itemID {
		nominatedStatus = verdict.NewStatus
	}
	if nominatedStatus != domain.QaStatusAccepted {
		return false, fmt.Errorf("%w: nominated dataset %s is %s, only accepted datasets can be active", errVerdictInvalid, nominatedID, nominatedStatus)
	}

	if current != nil && current.ID == nominatedID {
		return false, nil
	}
	if current != nil {
		if err := s.metaRepo.ClearActive(ctx, tx, current.ID); err != nil {
			return false, fmt.Errorf("deactivate dataset %s: %w", current.ID, err)
		}
	}
	if err := s.metaRepo.SetActive(ctx, tx, nominatedID); err != nil {
		return false, fmt.Errorf("activate dataset %s: %w", nominatedID, err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSlotMoves.Inc()
	}
	return nominatedID == itemID, nil
}

// clearNonSourceable retires a standing non-sourceable flag once real data
// became active for the key.
func (s *activationService) clearNonSourceable(ctx context.Context, tx *gorm.DB, key domain.DataKey, userID uuid.UUID) error {
	latest, err := s.srcRepo.LatestForKey(ctx, tx, key)
	if err != nil {
		return fmt.Errorf("load sourceability flag: %w", err)
	}
	if latest == nil || !latest.NonSourceable {
		return nil
	}
	return s.srcRepo.Create(ctx, tx, &domain.SourceabilityFlag{
		ID:              uuid.New(),
		CompanyID:       key.CompanyID,
		DataType:        key.DataType,
		ReportingPeriod: key.ReportingPeriod,
		NonSourceable:   false,
		Reason:          "dataset accepted and activated",
		CreatorUserID:   userID,
	})
}

func (s *activationService) applyPointVerdict(ctx context.Context, log *logger.Logger, verdict events.QaStatusChangedPayload) error {
	point, err := s.pointRepo.GetByID(ctx, nil, verdict.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The verdict may have raced the upload's commit.
			return events.Retryable(fmt.Errorf("unknown item %s", verdict.ItemID))
		}
		return events.Retryable(fmt.Errorf("load data point: %w", err))
	}

	link, err := s.linkRepo.GetByDataPointID(ctx, nil, point.ID)
	if err != nil {
		return events.Retryable(fmt.Errorf("resolve owning dataset: %w", err))
	}
	if link != nil {
		// Constituent points take their status from the dataset verdict.
		return fmt.Errorf("data point %s belongs to dataset %s and cannot be reviewed on its own", point.ID, link.DatasetID)
	}

	if err := s.inTx(ctx, func(tx *gorm.DB) error {
		return s.pointRepo.UpdateQaStatus(ctx, tx, point.ID, verdict.NewStatus)
	}); err != nil {
		return events.Retryable(fmt.Errorf("update data point qa status: %w", err))
	}
	if s.metrics != nil {
		s.metrics.QaVerdictsApplied.Inc()
	}
	log.Info("applied data point verdict", "dataPointType", point.DataPointType)
	return nil
}

func (s *activationService) publishPersisted(ctx context.Context, correlationID string, itemID uuid.UUID, log *logger.Logger) {
	env, err := events.NewEnvelope(events.TypeItemPersisted, correlationID, events.ItemPersistedPayload{ItemID: itemID})
	if err == nil {
		err = s.bus.Publish(ctx, events.TypeItemPersisted, env)
	}
	if err != nil {
		// The staging TTL eventually evicts the entry anyway.
		log.Error("publish item persisted failed", "error", err)
	}
}
