package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/verdantis/esgdata-backend/internal/http/handlers"
	httpMW "github.com/verdantis/esgdata-backend/internal/http/middleware"
	"github.com/verdantis/esgdata-backend/internal/observability"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware
	Metrics        *observability.Metrics

	DatasetHandler       *httpH.DatasetHandler
	DataPointHandler     *httpH.DataPointHandler
	SourceabilityHandler *httpH.SourceabilityHandler
	HealthHandler        *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("esgdata-backend"))
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if cfg.DatasetHandler != nil {
			protected.POST("/datasets/:framework", cfg.DatasetHandler.UploadDataset)
			protected.GET("/datasets/:id", cfg.DatasetHandler.GetDataset)
			protected.GET("/data/:framework/companies/:companyId/active", cfg.DatasetHandler.GetActiveDataset)
			protected.GET("/metadata", cfg.DatasetHandler.SearchMetadata)
		}

		if cfg.DataPointHandler != nil {
			protected.POST("/data-points", cfg.DataPointHandler.UploadDataPoint)
			protected.GET("/data-points/:id", cfg.DataPointHandler.GetDataPoint)
			protected.POST("/data-points/batch", cfg.DataPointHandler.GetDataPointBatch)
		}

		if cfg.SourceabilityHandler != nil {
			protected.GET("/sourceability", cfg.SourceabilityHandler.GetSourceability)
			if cfg.AuthMiddleware != nil {
				protected.POST("/sourceability", cfg.AuthMiddleware.RequireRole(httpMW.RoleReviewer), cfg.SourceabilityHandler.FlagNonSourceable)
			} else {
				protected.POST("/sourceability", cfg.SourceabilityHandler.FlagNonSourceable)
			}
		}
	}

	return r
}
