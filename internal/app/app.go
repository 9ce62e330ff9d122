package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/db"
	"github.com/verdantis/esgdata-backend/internal/events"
	internalhttp "github.com/verdantis/esgdata-backend/internal/http"
	httpMW "github.com/verdantis/esgdata-backend/internal/http/middleware"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
	"github.com/verdantis/esgdata-backend/internal/schema"
	"github.com/verdantis/esgdata-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *internalhttp.Server
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Catalog  schema.Catalog
	Bus      events.Bus
	Staging  services.StagingStore
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	cfg := LoadConfig()
	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "esgdata-backend",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	theDB := pg.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	catalog, err := wireCatalog(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	bus, err := wireBus(log, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	staging, err := wireStaging(log, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init staging store: %w", err)
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, catalog, reposet, staging, bus, metrics)
	handlerset := wireHandlers(theDB, log, serviceset)

	server := internalhttp.NewServer(internalhttp.RouterConfig{
		Log:                  log,
		AuthMiddleware:       httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
		Metrics:              metrics,
		DatasetHandler:       handlerset.Dataset,
		DataPointHandler:     handlerset.DataPoint,
		SourceabilityHandler: handlerset.Sourceability,
		HealthHandler:        handlerset.Health,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Router:       server.Engine,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Catalog:      catalog,
		Bus:          bus,
		Staging:      staging,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background consumers: the QA verdict consumer and the
// staging eviction listener.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Services.QaConsumer.Start(ctx); err != nil {
		return fmt.Errorf("start qa consumer: %w", err)
	}
	if err := services.StartStagingEviction(ctx, a.Bus, a.Staging, a.Log, a.Metrics); err != nil {
		return fmt.Errorf("start staging eviction: %w", err)
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(a.Cfg.HTTPAddr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = a.Server.Shutdown(shutdownCtx)
		cancel()
	}
	if a.Services.QaConsumer != nil {
		a.Services.QaConsumer.Close()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithCancel(context.Background())
		_ = a.otelShutdown(shutdownCtx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
