package models

import "time"

// Outcome status constants, mirroring dispatch entry statuses on the wire.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// EventSource identifies the producer of outcome events.
const EventSource = "drip-mailer"

// OutcomeEvent is emitted once per processed recipient row.
type OutcomeEvent struct {
	EventID    string    `json:"event_id"`
	RunID      string    `json:"run_id"`
	Row        int       `json:"row"`
	Recipient  string    `json:"recipient,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Completed  int       `json:"completed"`
	Total      int       `json:"total"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RunSummary is emitted once when a run ends.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	State          string    `json:"state"`
	AbortReason    string    `json:"abort_reason,omitempty"`
	Rows           int       `json:"rows"`
	Total          int       `json:"total"`
	Completed      int       `json:"completed"`
	Sent           int       `json:"sent"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	DurationMillis int64     `json:"duration_ms"`
	Source         string    `json:"source"`
}
