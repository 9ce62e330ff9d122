package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/verdantis/esgdata-backend/internal/domain"
)

func AutoMigrateAll(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&domain.DataPoint{},
		&domain.DatasetMeta{},
		&domain.DatasetDataPoint{},
		&domain.ReferencedReport{},
		&domain.SourceabilityFlag{},
	); err != nil {
		return err
	}

	// One active dataset per (company, data type, reporting period). The
	// activation coordinator orders its writes so this is never hit; the
	// index turns any coordinator bug into a hard failure instead of two
	// active rows.
	if err := gdb.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_dataset_meta_active
		 ON dataset_meta (company_id, data_type, reporting_period)
		 WHERE active`,
	).Error; err != nil {
		return fmt.Errorf("create active-dataset unique index: %w", err)
	}

	return nil
}
