package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

// SourceabilityService maintains the append-only ledger of data keys for
// which no public source material is believed to exist. The newest row per
// key wins; the activation side appends a clearing row when real data is
// accepted for a flagged key.
type SourceabilityService interface {
	SetNonSourceable(ctx context.Context, key domain.DataKey, reason string) (*domain.SourceabilityFlag, error)
	IsNonSourceable(ctx context.Context, key domain.DataKey) (bool, error)
	ListForCompany(ctx context.Context, companyID uuid.UUID) ([]*domain.SourceabilityFlag, error)
}

type sourceabilityService struct {
	db      *gorm.DB
	log     *logger.Logger
	srcRepo repos.SourceabilityRepo
}

func NewSourceabilityService(db *gorm.DB, baseLog *logger.Logger, srcRepo repos.SourceabilityRepo) SourceabilityService {
	return &sourceabilityService{
		db:      db,
		log:     baseLog.With("service", "SourceabilityService"),
		srcRepo: srcRepo,
	}
}

func (s *sourceabilityService) SetNonSourceable(ctx context.Context, key domain.DataKey, reason string) (*domain.SourceabilityFlag, error) {
	if key.CompanyID == uuid.Nil || key.DataType == "" || key.ReportingPeriod == "" {
		return nil, fmt.Errorf("%w: incomplete data key", ErrInvalidUpload)
	}
	var creatorID uuid.UUID
	if user := ctxutil.GetRequestUser(ctx); user != nil {
		creatorID = user.UserID
	}
	flag := &domain.SourceabilityFlag{
		ID:              uuid.New(),
		CompanyID:       key.CompanyID,
		DataType:        key.DataType,
		ReportingPeriod: key.ReportingPeriod,
		NonSourceable:   true,
		Reason:          reason,
		CreatorUserID:   creatorID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.srcRepo.Create(ctx, nil, flag); err != nil {
		return nil, fmt.Errorf("create sourceability flag: %w", err)
	}
	s.log.Info("flagged key as non-sourceable", "dataKey", key.String(), "correlationId", ctxutil.CorrelationID(ctx))
	return flag, nil
}

func (s *sourceabilityService) IsNonSourceable(ctx context.Context, key domain.DataKey) (bool, error) {
	latest, err := s.srcRepo.LatestForKey(ctx, nil, key)
	if err != nil {
		return false, fmt.Errorf("load sourceability flag: %w", err)
	}
	return latest != nil && latest.NonSourceable, nil
}

func (s *sourceabilityService) ListForCompany(ctx context.Context, companyID uuid.UUID) ([]*domain.SourceabilityFlag, error) {
	return s.srcRepo.GetByCompany(ctx, nil, companyID)
}
