package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/domain"
)

// Routing keys. Datasets and single data points share the QA topics; the
// consumer distinguishes them by resolving the item id.
const (
	TypeDatasetStored   = "dataset.stored"
	TypeDataPointStored = "datapoint.stored"
	TypeQaStatusChanged = "qa.status.changed"
	TypeItemPersisted   = "item.persisted"
)

// Envelope is the wire frame for every message on the bus. CorrelationID is
// carried end to end so a QA decision can be traced back to the upload that
// produced the item.
type Envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, CorrelationID: correlationID, Payload: raw}, nil
}

// StoredPayload announces that a dataset or standalone data point has been
// durably persisted and awaits a QA verdict. BypassQa tells the QA service
// to auto-accept without review.
type StoredPayload struct {
	ItemID          uuid.UUID `json:"itemId"`
	CompanyID       uuid.UUID `json:"companyId"`
	DataType        string    `json:"dataType"`
	ReportingPeriod string    `json:"reportingPeriod"`
	UploaderUserID  uuid.UUID `json:"uploaderUserId"`
	BypassQa        bool      `json:"bypassQa"`
}

// QaStatusChangedPayload is the QA service's verdict for one item.
// CurrentlyActiveItemID nominates which accepted item should be active for
// the item's key afterwards; nil means nothing should remain active.
type QaStatusChangedPayload struct {
	ItemID                uuid.UUID       `json:"itemId"`
	NewStatus             domain.QaStatus `json:"newStatus"`
	CurrentlyActiveItemID *uuid.UUID      `json:"currentlyActiveItemId,omitempty"`
}

// ItemPersistedPayload confirms that a QA verdict has been durably applied.
// Upstream caches drop their staged copy of the item on receipt.
type ItemPersistedPayload struct {
	ItemID uuid.UUID `json:"itemId"`
}

func (e Envelope) DecodePayload(into any) error {
	if err := json.Unmarshal(e.Payload, into); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
