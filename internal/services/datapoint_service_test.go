package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type dataPointFixture struct {
	pointRepo *fakePointRepo
	staging   *MemoryStagingStore
	bus       *events.MemoryBus
	published map[string][]events.Envelope
	metrics   *observability.Metrics
	svc       DataPointService
}

func newDataPointFixture(t *testing.T) *dataPointFixture {
	t.Helper()
	f := &dataPointFixture{
		pointRepo: newFakePointRepo(),
		staging:   NewMemoryStagingStore(),
		bus:       events.NewMemoryBus(logger.NewNop()),
		published: map[string][]events.Envelope{},
		metrics:   newTestMetrics(),
	}
	for _, topic := range []string{events.TypeDataPointStored, events.TypeQaStatusChanged} {
		topic := topic
		if err := f.bus.Subscribe(context.Background(), topic, "test", func(ctx context.Context, env events.Envelope) error {
			f.published[topic] = append(f.published[topic], env)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	catalog := &fakeCatalog{types: map[string]bool{"revenueEur": true}}
	f.svc = NewDataPointService(nil, logger.NewNop(), catalog, f.pointRepo, f.staging, f.bus, f.metrics)
	return f
}

func TestStoreDataPoint(t *testing.T) {
	f := newDataPointFixture(t)
	ctx := ctxutil.WithRequestUser(context.Background(), &ctxutil.RequestUser{UserID: uuid.New()})

	point, err := f.svc.StoreDataPoint(ctx, &domain.UploadedDataPoint{
		DataPointType:   "revenueEur",
		CompanyID:       uuid.New(),
		ReportingPeriod: "2024",
		Content:         json.RawMessage(`{"value": 42, "currency": "EUR"}`),
	})
	if err != nil {
		t.Fatalf("store data point: %v", err)
	}
	if point.QaStatus != domain.QaStatusPending {
		t.Fatalf("new point must be pending, got %s", point.QaStatus)
	}
	staged, err := f.staging.Get(ctx, point.ID)
	if err != nil {
		t.Fatal(err)
	}
	if staged == nil {
		t.Fatal("content must be staged")
	}
	if got := f.published[events.TypeDataPointStored]; len(got) != 1 {
		t.Fatalf("expected one stored notification, got %d", len(got))
	}
	var payload events.StoredPayload
	if err := f.published[events.TypeDataPointStored][0].DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.ItemID != point.ID || payload.DataType != "revenueEur" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if got := f.metrics.DataPointsStored.Value(); got != 1 {
		t.Fatalf("data points stored counter = %v, want 1", got)
	}
}

func TestStoreDataPointRejectsUnknownType(t *testing.T) {
	f := newDataPointFixture(t)
	_, err := f.svc.StoreDataPoint(context.Background(), &domain.UploadedDataPoint{
		DataPointType:   "bogusType",
		CompanyID:       uuid.New(),
		ReportingPeriod: "2024",
		Content:         json.RawMessage(`{"value": 1}`),
	})
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected ErrInvalidUpload, got %v", err)
	}
	if len(f.pointRepo.points) != 0 {
		t.Fatal("nothing may be persisted for a rejected upload")
	}
}

func TestStoreDataPointBypassPublishesAcceptance(t *testing.T) {
	f := newDataPointFixture(t)
	ctx := ctxutil.WithRequestUser(context.Background(), &ctxutil.RequestUser{UserID: uuid.New(), BypassQa: true})

	point, err := f.svc.StoreDataPoint(ctx, &domain.UploadedDataPoint{
		DataPointType:   "revenueEur",
		CompanyID:       uuid.New(),
		ReportingPeriod: "2024",
		Content:         json.RawMessage(`{"value": 7}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	verdicts := f.published[events.TypeQaStatusChanged]
	if len(verdicts) != 1 {
		t.Fatalf("expected one auto acceptance, got %d", len(verdicts))
	}
	var verdict events.QaStatusChangedPayload
	if err := verdicts[0].DecodePayload(&verdict); err != nil {
		t.Fatal(err)
	}
	if verdict.ItemID != point.ID || verdict.NewStatus != domain.QaStatusAccepted {
		t.Fatalf("unexpected verdict %+v", verdict)
	}
}

func TestGetDataPointPrefersStagedContent(t *testing.T) {
	f := newDataPointFixture(t)
	ctx := context.Background()

	point, err := f.svc.StoreDataPoint(ctx, &domain.UploadedDataPoint{
		DataPointType:   "revenueEur",
		CompanyID:       uuid.New(),
		ReportingPeriod: "2024",
		Content:         json.RawMessage(`{"value": 42}`),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.GetDataPoint(ctx, point.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !jsonEqual(t, json.RawMessage(got.Content), json.RawMessage(`{"value": 42}`)) {
		t.Fatalf("unexpected content %s", got.Content)
	}

	if err := f.staging.Evict(ctx, point.ID); err != nil {
		t.Fatal(err)
	}
	got, err = f.svc.GetDataPoint(ctx, point.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !jsonEqual(t, json.RawMessage(got.Content), json.RawMessage(`{"value": 42}`)) {
		t.Fatal("database content must serve reads after eviction")
	}

	if _, err := f.svc.GetDataPoint(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
