package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReferencedReport records an external document cited by a dataset, keyed by
// the content hash of the file. It carries no activation semantics; it exists
// so reads can resolve the documents a dataset's data sources point at.
type ReferencedReport struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID `gorm:"type:uuid;not null;index" json:"dataset_id"`

	FileReference   string     `gorm:"column:file_reference;not null;index" json:"file_reference"`
	FileName        string     `gorm:"column:file_name" json:"file_name,omitempty"`
	PublicationDate *time.Time `gorm:"column:publication_date" json:"publication_date,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ReferencedReport) TableName() string { return "referenced_report" }
