package app

import (
	"gorm.io/gorm"

	httpH "github.com/verdantis/esgdata-backend/internal/http/handlers"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type Handlers struct {
	Dataset       *httpH.DatasetHandler
	DataPoint     *httpH.DataPointHandler
	Sourceability *httpH.SourceabilityHandler
	Health        *httpH.HealthHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Dataset:       httpH.NewDatasetHandler(serviceset.Dataset),
		DataPoint:     httpH.NewDataPointHandler(serviceset.DataPoint),
		Sourceability: httpH.NewSourceabilityHandler(serviceset.Sourceability),
		Health:        httpH.NewHealthHandler(db),
	}
}
