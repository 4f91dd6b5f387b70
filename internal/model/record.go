package model

import "time"

// RecordStatus represents the processing state of a catalog identifier.
type RecordStatus string

const (
	StatusUnprocessed RecordStatus = "unprocessed"
	StatusScheduled   RecordStatus = "scheduled"
	StatusPublished   RecordStatus = "published"
	StatusDraft       RecordStatus = "draft"
	StatusFailed      RecordStatus = "failed"
)

// validTransitions encodes the per-identifier state machine. Published,
// draft and failed are terminal; only unprocessed items may be re-attempted
// by a later run.
var validTransitions = map[RecordStatus][]RecordStatus{
	StatusUnprocessed: {StatusScheduled, StatusDraft, StatusFailed},
	StatusScheduled:   {StatusPublished, StatusFailed},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to RecordStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status permits no further transitions.
func (s RecordStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// ProcessingRecord is the durable dedup ledger entry for one identifier.
// Exactly one record exists per identifier ever seen.
type ProcessingRecord struct {
	ContentID          string       `json:"content_id"`
	Title              string       `json:"title,omitempty"`
	Status             RecordStatus `json:"status"`
	ScheduledAt        *time.Time   `json:"scheduled_at,omitempty"`
	PublishedReference string       `json:"published_reference,omitempty"`
	ErrorDetail        string       `json:"error_detail,omitempty"`
	LastUpdatedAt      time.Time    `json:"last_updated_at"`
}
