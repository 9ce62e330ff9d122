package services

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
	"github.com/verdantis/esgdata-backend/internal/schema"
	"github.com/verdantis/esgdata-backend/internal/specwalk"
)

const testFrameworkSchema = `{
	"general": {},
	"environment": {
		"emissions": {"id": "scope1Emissions", "ref": "dp/scope1Emissions"},
		"energy": {"id": "energyConsumption", "ref": "dp/energyConsumption"}
	}
}`

const testDocument = `{
	"general": {
		"referencedReports": {
			"annual.pdf": {"fileReference": "ref-123", "publicationDate": "2024-03-31"}
		}
	},
	"environment": {
		"emissions": {"value": 12.5, "dataSource": {"fileReference": "ref-123", "fileName": "annual.pdf"}},
		"energy": null
	}
}`

type datasetFixture struct {
	metaRepo   *fakeMetaRepo
	pointRepo  *fakePointRepo
	linkRepo   *fakeLinkRepo
	reportRepo *fakeReportRepo
	staging    *MemoryStagingStore
	bus        *events.MemoryBus
	published  map[string][]events.Envelope
	metrics    *observability.Metrics
	svc        DatasetService
}

func newDatasetFixture(t *testing.T) *datasetFixture {
	t.Helper()
	f := &datasetFixture{
		metaRepo:   newFakeMetaRepo(),
		pointRepo:  newFakePointRepo(),
		linkRepo:   newFakeLinkRepo(),
		reportRepo: newFakeReportRepo(),
		staging:    NewMemoryStagingStore(),
		bus:        events.NewMemoryBus(logger.NewNop()),
		published:  map[string][]events.Envelope{},
		metrics:    newTestMetrics(),
	}
	for _, topic := range []string{events.TypeDatasetStored, events.TypeQaStatusChanged} {
		topic := topic
		if err := f.bus.Subscribe(context.Background(), topic, "test", func(ctx context.Context, env events.Envelope) error {
			f.published[topic] = append(f.published[topic], env)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	catalog := &fakeCatalog{specs: map[string]*schema.FrameworkSpecification{
		"sfdr": {
			FrameworkID:          "sfdr",
			Schema:               json.RawMessage(testFrameworkSchema),
			ReferencedReportPath: "general.referencedReports",
		},
	}}
	f.svc = NewDatasetService(nil, logger.NewNop(), catalog, f.metaRepo, f.pointRepo, f.linkRepo, f.reportRepo, f.staging, f.bus, f.metrics)
	return f
}

func testUpload() *domain.StorableDataset {
	return &domain.StorableDataset{
		CompanyID:       uuid.New(),
		DataType:        "sfdr",
		ReportingPeriod: "2024",
		Data:            json.RawMessage(testDocument),
		UploaderUserID:  uuid.New(),
	}
}

func TestStoreDatasetDecomposesDocument(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()

	meta, err := f.svc.StoreDataset(ctx, testUpload())
	if err != nil {
		t.Fatalf("store dataset: %v", err)
	}
	if meta.QaStatus != domain.QaStatusPending || meta.Active {
		t.Fatalf("new dataset must be pending and inactive, got status=%s active=%v", meta.QaStatus, meta.Active)
	}

	links, err := f.linkRepo.GetByDatasetID(ctx, nil, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	byType := map[string]uuid.UUID{}
	for _, link := range links {
		byType[link.DataPointType] = link.DataPointID
	}
	if _, ok := byType["scope1Emissions"]; !ok {
		t.Fatal("emissions leaf not stored")
	}
	if _, ok := byType[specwalk.ReferencedReportsID]; !ok {
		t.Fatal("referenced reports subtree not stored as a data point")
	}
	if _, ok := byType["energyConsumption"]; ok {
		t.Fatal("null leaf must not be persisted")
	}

	point, err := f.pointRepo.GetByID(ctx, nil, byType["scope1Emissions"])
	if err != nil {
		t.Fatal(err)
	}
	var content struct {
		DataSource specwalk.Report `json:"dataSource"`
	}
	if err := json.Unmarshal(point.Content, &content); err != nil {
		t.Fatal(err)
	}
	if content.DataSource.PublicationDate != "2024-03-31" {
		t.Fatalf("publication date not stamped into data source, got %q", content.DataSource.PublicationDate)
	}

	reports, err := f.reportRepo.GetByDatasetID(ctx, nil, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].FileReference != "ref-123" {
		t.Fatalf("unexpected report rows: %+v", reports)
	}
	if reports[0].PublicationDate == nil || reports[0].PublicationDate.Format("2006-01-02") != "2024-03-31" {
		t.Fatal("publication date not parsed into report row")
	}

	staged, err := f.staging.Get(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if staged == nil {
		t.Fatal("raw document must be staged")
	}
	if got := f.published[events.TypeDatasetStored]; len(got) != 1 {
		t.Fatalf("expected one stored notification, got %d", len(got))
	}
	if got := f.published[events.TypeQaStatusChanged]; len(got) != 0 {
		t.Fatal("no qa verdict may be published without bypass")
	}
}

func TestStoreDatasetRejectsUndeclaredCitation(t *testing.T) {
	f := newDatasetFixture(t)
	upload := testUpload()
	upload.Data = json.RawMessage(`{
		"general": {"referencedReports": {}},
		"environment": {
			"emissions": {"value": 1, "dataSource": {"fileReference": "ref-999"}}
		}
	}`)

	_, err := f.svc.StoreDataset(context.Background(), upload)
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected ErrInvalidUpload, got %v", err)
	}
	if len(f.metaRepo.metas) != 0 {
		t.Fatal("nothing may be persisted for a rejected upload")
	}
}

func TestStoreDatasetRejectsUncitedDeclaration(t *testing.T) {
	f := newDatasetFixture(t)
	upload := testUpload()
	upload.Data = json.RawMessage(`{
		"general": {"referencedReports": {"orphan.pdf": {"fileReference": "ref-777"}}},
		"environment": {"emissions": {"value": 1}}
	}`)

	_, err := f.svc.StoreDataset(context.Background(), upload)
	if !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected ErrInvalidUpload, got %v", err)
	}
}

func TestStoreDatasetRejectsUnknownFramework(t *testing.T) {
	f := newDatasetFixture(t)
	upload := testUpload()
	upload.DataType = "unknown"
	if _, err := f.svc.StoreDataset(context.Background(), upload); !errors.Is(err, ErrInvalidUpload) {
		t.Fatalf("expected ErrInvalidUpload, got %v", err)
	}
}

func TestGetDatasetPrefersStagedDocument(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	meta, err := f.svc.StoreDataset(ctx, testUpload())
	if err != nil {
		t.Fatal(err)
	}

	payload, err := f.svc.GetDataset(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !jsonEqual(t, payload.Data, json.RawMessage(testDocument)) {
		t.Fatal("staged read must return the original document")
	}
}

func TestGetDatasetReassemblesAfterEviction(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	meta, err := f.svc.StoreDataset(ctx, testUpload())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.staging.Evict(ctx, meta.ID); err != nil {
		t.Fatal(err)
	}

	payload, err := f.svc.GetDataset(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The reassembled document carries the stamped publication date; the
	// rest matches the upload, with the empty leaf blanked to null.
	expected := json.RawMessage(`{
		"general": {
			"referencedReports": {
				"annual.pdf": {"fileReference": "ref-123", "publicationDate": "2024-03-31"}
			}
		},
		"environment": {
			"emissions": {"value": 12.5, "dataSource": {"fileReference": "ref-123", "fileName": "annual.pdf", "publicationDate": "2024-03-31"}},
			"energy": null
		}
	}`)
	if !jsonEqual(t, payload.Data, expected) {
		t.Fatalf("reassembly mismatch:\n got %s", payload.Data)
	}
}

func TestGetDatasetToleratesMissingDataPoint(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	meta, err := f.svc.StoreDataset(ctx, testUpload())
	if err != nil {
		t.Fatal(err)
	}
	if err := f.staging.Evict(ctx, meta.ID); err != nil {
		t.Fatal(err)
	}

	links, err := f.linkRepo.GetByDatasetID(ctx, nil, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, link := range links {
		if link.DataPointType == "scope1Emissions" {
			f.pointRepo.remove(link.DataPointID)
		}
	}

	payload, err := f.svc.GetDataset(ctx, meta.ID)
	if err != nil {
		t.Fatalf("reassembly must tolerate a missing data point, got %v", err)
	}
	// The missing leaf is blanked to null; the rest of the document is intact.
	expected := json.RawMessage(`{
		"general": {
			"referencedReports": {
				"annual.pdf": {"fileReference": "ref-123", "publicationDate": "2024-03-31"}
			}
		},
		"environment": {
			"emissions": null,
			"energy": null
		}
	}`)
	if !jsonEqual(t, payload.Data, expected) {
		t.Fatalf("reassembly mismatch:\n got %s", payload.Data)
	}
}

func TestGetDatasetUnknownID(t *testing.T) {
	f := newDatasetFixture(t)
	if _, err := f.svc.GetDataset(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBypassQaActivatesImmediately(t *testing.T) {
	f := newDatasetFixture(t)
	srcRepo := newFakeSourceabilityRepo()
	activation := NewActivationService(nil, logger.NewNop(), f.metaRepo, f.pointRepo, f.linkRepo, srcRepo, f.bus, nil)
	consumer := NewQaConsumer(logger.NewNop(), f.bus, activation, f.metrics)
	defer consumer.Close()

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := StartStagingEviction(ctx, f.bus, f.staging, logger.NewNop(), f.metrics); err != nil {
		t.Fatal(err)
	}

	uploader := &ctxutil.RequestUser{UserID: uuid.New(), BypassQa: true}
	meta, err := f.svc.StoreDataset(ctxutil.WithRequestUser(ctx, uploader), testUpload())
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.metaRepo.GetByID(ctx, nil, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.QaStatus != domain.QaStatusAccepted || !got.Active {
		t.Fatalf("bypass upload must end accepted and active, got status=%s active=%v", got.QaStatus, got.Active)
	}
	staged, err := f.staging.Get(ctx, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if staged != nil {
		t.Fatal("staged payload must be evicted after the persistence confirmation")
	}
}

// flakyBus rejects the first publishes on each topic before delegating to
// the wrapped bus.
type flakyBus struct {
	inner    events.Bus
	failures int
	mu       sync.Mutex
	attempts map[string]int
}

func newFlakyBus(inner events.Bus, failures int) *flakyBus {
	return &flakyBus{inner: inner, failures: failures, attempts: map[string]int{}}
}

func (b *flakyBus) Publish(ctx context.Context, topic string, env events.Envelope) error {
	b.mu.Lock()
	b.attempts[topic]++
	failing := b.attempts[topic] <= b.failures
	b.mu.Unlock()
	if failing {
		return errors.New("bus unavailable")
	}
	return b.inner.Publish(ctx, topic, env)
}

func (b *flakyBus) Subscribe(ctx context.Context, topic, group string, handler events.Handler) error {
	return b.inner.Subscribe(ctx, topic, group, handler)
}

func (b *flakyBus) Close() error { return b.inner.Close() }

func TestBypassQaPublishRetriesTransientBusFailure(t *testing.T) {
	f := newDatasetFixture(t)
	srcRepo := newFakeSourceabilityRepo()
	activation := NewActivationService(nil, logger.NewNop(), f.metaRepo, f.pointRepo, f.linkRepo, srcRepo, f.bus, nil)
	consumer := NewQaConsumer(logger.NewNop(), f.bus, activation, nil)
	defer consumer.Close()

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Every topic drops the first publish; the store path must retry so
	// the bypass acceptance still reaches the activation consumer.
	catalog := &fakeCatalog{specs: map[string]*schema.FrameworkSpecification{
		"sfdr": {
			FrameworkID:          "sfdr",
			Schema:               json.RawMessage(testFrameworkSchema),
			ReferencedReportPath: "general.referencedReports",
		},
	}}
	svc := NewDatasetService(nil, logger.NewNop(), catalog, f.metaRepo, f.pointRepo, f.linkRepo, f.reportRepo, f.staging, newFlakyBus(f.bus, 1), nil)

	uploader := &ctxutil.RequestUser{UserID: uuid.New(), BypassQa: true}
	meta, err := svc.StoreDataset(ctxutil.WithRequestUser(ctx, uploader), testUpload())
	if err != nil {
		t.Fatal(err)
	}

	got, err := f.metaRepo.GetByID(ctx, nil, meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.QaStatus != domain.QaStatusAccepted || !got.Active {
		t.Fatalf("bypass upload must survive a transient publish failure, got status=%s active=%v", got.QaStatus, got.Active)
	}
}

func TestStoreDatasetRecordsMetrics(t *testing.T) {
	f := newDatasetFixture(t)
	srcRepo := newFakeSourceabilityRepo()
	activation := NewActivationService(nil, logger.NewNop(), f.metaRepo, f.pointRepo, f.linkRepo, srcRepo, f.bus, f.metrics)
	consumer := NewQaConsumer(logger.NewNop(), f.bus, activation, f.metrics)
	defer consumer.Close()

	ctx := context.Background()
	if err := consumer.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := StartStagingEviction(ctx, f.bus, f.staging, logger.NewNop(), f.metrics); err != nil {
		t.Fatal(err)
	}

	uploader := &ctxutil.RequestUser{UserID: uuid.New(), BypassQa: true}
	if _, err := f.svc.StoreDataset(ctxutil.WithRequestUser(ctx, uploader), testUpload()); err != nil {
		t.Fatal(err)
	}

	if got := f.metrics.DatasetsStored.Value(); got != 1 {
		t.Fatalf("datasets stored counter = %v, want 1", got)
	}
	// The document yields the emissions leaf plus the referenced-reports
	// subtree; the null energy leaf is not persisted.
	if got := f.metrics.DataPointsStored.Value(); got != 2 {
		t.Fatalf("data points stored counter = %v, want 2", got)
	}
	if got := f.metrics.QaVerdictsApplied.Value(); got != 1 {
		t.Fatalf("qa verdicts applied counter = %v, want 1", got)
	}
	if got := f.metrics.StagingEvictions.Value(); got != 1 {
		t.Fatalf("staging evictions counter = %v, want 1", got)
	}
	if got := f.metrics.QaQueueDepth.Value(); got != 0 {
		t.Fatalf("qa queue depth = %v, want 0 after the verdict settles", got)
	}
}

func TestGetActiveDataset(t *testing.T) {
	f := newDatasetFixture(t)
	ctx := context.Background()
	meta, err := f.svc.StoreDataset(ctx, testUpload())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.GetActiveDataset(ctx, meta.Key()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("pending dataset must not be active, got %v", err)
	}

	if err := f.metaRepo.SetActive(ctx, nil, meta.ID); err != nil {
		t.Fatal(err)
	}
	payload, err := f.svc.GetActiveDataset(ctx, meta.Key())
	if err != nil {
		t.Fatal(err)
	}
	if payload.Meta.ID != meta.ID {
		t.Fatalf("unexpected active dataset %s", payload.Meta.ID)
	}
}

func jsonEqual(t *testing.T, a, b json.RawMessage) bool {
	t.Helper()
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		t.Fatalf("unmarshal a: %v", err)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		t.Fatalf("unmarshal b: %v", err)
	}
	return reflect.DeepEqual(av, bv)
}
