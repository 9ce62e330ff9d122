package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceabilityFlag marks a DataKey for which no public source material is
// believed to exist. The newest row per key wins. Accepting a real dataset
// for the key clears the flag (a new row with NonSourceable=false).
type SourceabilityFlag struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	CompanyID       uuid.UUID `gorm:"type:uuid;not null;index:idx_sourceability_dimensions" json:"company_id"`
	DataType        string    `gorm:"column:data_type;not null;index:idx_sourceability_dimensions" json:"data_type"`
	ReportingPeriod string    `gorm:"column:reporting_period;not null;index:idx_sourceability_dimensions" json:"reporting_period"`

	NonSourceable bool   `gorm:"column:non_sourceable;not null" json:"non_sourceable"`
	Reason        string `gorm:"column:reason" json:"reason,omitempty"`

	CreatorUserID uuid.UUID `gorm:"type:uuid" json:"creator_user_id"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (SourceabilityFlag) TableName() string { return "sourceability_flag" }
