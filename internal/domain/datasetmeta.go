package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataKey identifies the group of datasets competing for the single active
// slot: one company, one framework, one reporting period.
type DataKey struct {
	CompanyID       uuid.UUID
	DataType        string
	ReportingPeriod string
}

func (k DataKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.CompanyID, k.DataType, k.ReportingPeriod)
}

// DatasetMeta is the metadata row for one logical submission. Rows are never
// deleted; newer submissions for the same DataKey supersede older ones by
// taking over the active flag. At most one row per DataKey has Active=true,
// enforced by a partial unique index (see data/db).
type DatasetMeta struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	CompanyID       uuid.UUID `gorm:"type:uuid;not null;index:idx_dataset_dimensions" json:"company_id"`
	DataType        string    `gorm:"column:data_type;not null;index:idx_dataset_dimensions" json:"data_type"`
	ReportingPeriod string    `gorm:"column:reporting_period;not null;index:idx_dataset_dimensions" json:"reporting_period"`

	QaStatus QaStatus `gorm:"column:qa_status;not null;default:'Pending';index" json:"qa_status"`
	Active   bool     `gorm:"column:active;not null;default:false" json:"active"`

	UploaderUserID uuid.UUID `gorm:"type:uuid;not null" json:"uploader_user_id"`
	UploadedAt     time.Time `gorm:"column:uploaded_at;not null;default:now()" json:"uploaded_at"`
}

func (DatasetMeta) TableName() string { return "dataset_meta" }

func (m *DatasetMeta) Key() DataKey {
	return DataKey{CompanyID: m.CompanyID, DataType: m.DataType, ReportingPeriod: m.ReportingPeriod}
}

// DatasetDataPoint links a dataset to one constituent data point under the
// data point type it occupies in the framework schema. The mapping is the
// authoritative record of which points make up a dataset and supports the
// reverse lookup from a data point to its owning dataset.
type DatasetDataPoint struct {
	DatasetID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"dataset_id"`
	DataPointType string    `gorm:"column:data_point_type;primaryKey" json:"data_point_type"`
	DataPointID   uuid.UUID `gorm:"type:uuid;not null;index" json:"data_point_id"`
}

func (DatasetDataPoint) TableName() string { return "dataset_data_point" }
