package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/events"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
	"github.com/verdantis/esgdata-backend/internal/schema"
	"github.com/verdantis/esgdata-backend/internal/services"
)

type Services struct {
	Dataset       services.DatasetService
	DataPoint     services.DataPointService
	Activation    services.ActivationService
	Sourceability services.SourceabilityService
	QaConsumer    *services.QaConsumer
}

func wireCatalog(ctx context.Context, log *logger.Logger, cfg Config) (schema.Catalog, error) {
	if cfg.SchemaCatalogURL != "" {
		httpCatalog := schema.NewHTTPCatalog(cfg.SchemaCatalogURL, log)
		waitCtx, cancel := context.WithTimeout(ctx, cfg.CatalogWaitReady)
		defer cancel()
		if err := httpCatalog.WaitReady(waitCtx); err != nil {
			return nil, fmt.Errorf("schema catalog not ready: %w", err)
		}
		return schema.NewCachedCatalog(httpCatalog), nil
	}
	log.Info("Using local schema fixtures", "dir", cfg.SchemaFixturesDir)
	return schema.NewLocalCatalog(cfg.SchemaFixturesDir)
}

func wireBus(log *logger.Logger, cfg Config) (events.Bus, error) {
	if cfg.BusMode == "memory" {
		return events.NewMemoryBus(log), nil
	}
	return events.NewRedisBus(log)
}

func wireStaging(log *logger.Logger, cfg Config) (services.StagingStore, error) {
	if cfg.BusMode == "memory" {
		return services.NewMemoryStagingStore(), nil
	}
	return services.NewRedisStagingStore(log)
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	catalog schema.Catalog,
	reposet Repos,
	staging services.StagingStore,
	bus events.Bus,
	metrics *observability.Metrics,
) Services {
	log.Info("Wiring services...")
	activation := services.NewActivationService(
		db, log,
		reposet.DatasetMeta, reposet.DataPoint, reposet.DatasetDataPoint, reposet.Sourceability,
		bus, metrics,
	)
	return Services{
		Dataset: services.NewDatasetService(
			db, log, catalog,
			reposet.DatasetMeta, reposet.DataPoint, reposet.DatasetDataPoint, reposet.ReferencedReport,
			staging, bus, metrics,
		),
		DataPoint:     services.NewDataPointService(db, log, catalog, reposet.DataPoint, staging, bus, metrics),
		Activation:    activation,
		Sourceability: services.NewSourceabilityService(db, log, reposet.Sourceability),
		QaConsumer:    services.NewQaConsumer(log, bus, activation, metrics),
	}
}
