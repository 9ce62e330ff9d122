package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StorableDataset is an uploaded framework submission before decomposition.
// Data is the raw document; it never reaches the database in this form.
type StorableDataset struct {
	CompanyID       uuid.UUID       `json:"company_id"`
	DataType        string          `json:"data_type"`
	ReportingPeriod string          `json:"reporting_period"`
	Data            json.RawMessage `json:"data"`
	UploaderUserID  uuid.UUID       `json:"uploader_user_id"`
	UploadedAt      time.Time       `json:"uploaded_at"`
}

func (d *StorableDataset) Key() DataKey {
	return DataKey{CompanyID: d.CompanyID, DataType: d.DataType, ReportingPeriod: d.ReportingPeriod}
}

// UploadedDataPoint is a single data point submitted on its own, outside a
// dataset upload.
type UploadedDataPoint struct {
	DataPointType   string          `json:"data_point_type"`
	CompanyID       uuid.UUID       `json:"company_id"`
	ReportingPeriod string          `json:"reporting_period"`
	Content         json.RawMessage `json:"content"`
}
