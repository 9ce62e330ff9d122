package app

import (
	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/platform/logger"
)

type Repos struct {
	DataPoint        repos.DataPointRepo
	DatasetMeta      repos.DatasetMetaRepo
	DatasetDataPoint repos.DatasetDataPointRepo
	ReferencedReport repos.ReferencedReportRepo
	Sourceability    repos.SourceabilityRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		DataPoint:        repos.NewDataPointRepo(db, log),
		DatasetMeta:      repos.NewDatasetMetaRepo(db, log),
		DatasetDataPoint: repos.NewDatasetDataPointRepo(db, log),
		ReferencedReport: repos.NewReferencedReportRepo(db, log),
		Sourceability:    repos.NewSourceabilityRepo(db, log),
	}
}
