package domain

// QaStatus is the review state of a data point or dataset. Pending entries
// await an asynchronous QA decision; only Accepted entries may become active.
type QaStatus string

const (
	QaStatusPending  QaStatus = "Pending"
	QaStatusAccepted QaStatus = "Accepted"
	QaStatusRejected QaStatus = "Rejected"
)

func (s QaStatus) Valid() bool {
	switch s {
	case QaStatusPending, QaStatusAccepted, QaStatusRejected:
		return true
	}
	return false
}
