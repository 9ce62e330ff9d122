package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DataPoint is a single leaf-level fact extracted from a structured
// submission. Content is immutable once stored; QaStatus is the only field
// that changes afterwards, and only through the activation coordinator.
type DataPoint struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DataPointType string    `gorm:"column:data_point_type;not null;index" json:"data_point_type"`

	CompanyID       uuid.UUID `gorm:"type:uuid;not null;index:idx_data_point_dimensions" json:"company_id"`
	ReportingPeriod string    `gorm:"column:reporting_period;not null;index:idx_data_point_dimensions" json:"reporting_period"`

	Content datatypes.JSON `gorm:"column:content;type:jsonb;not null" json:"content"`

	QaStatus QaStatus `gorm:"column:qa_status;not null;default:'Pending';index" json:"qa_status"`

	UploaderUserID uuid.UUID `gorm:"type:uuid;not null" json:"uploader_user_id"`
	UploadedAt     time.Time `gorm:"column:uploaded_at;not null;default:now()" json:"uploaded_at"`
}

func (DataPoint) TableName() string { return "data_point" }
