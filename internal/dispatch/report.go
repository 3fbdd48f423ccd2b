package dispatch

import (
	"fmt"
	"time"
)

// Status is the outcome of one recipient within a run.
type Status string

const (
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// State is the terminal state of a run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

const (
	reasonMissingEmail = "missing email"
	reasonAborted      = "run aborted"
	reasonCancelled    = "run cancelled"
)

const lineTimeFormat = "15:04:05"

// Entry records the outcome of one input row. Row is 1-based.
type Entry struct {
	Row     int
	Time    time.Time
	Address string
	Status  Status
	Reason  string
}

// Line formats the entry for the rolling progress log.
func (e Entry) Line() string {
	stamp := e.Time.Format(lineTimeFormat)
	switch e.Status {
	case StatusSent:
		return fmt.Sprintf("[%s] sent to %s", stamp, e.Address)
	case StatusFailed:
		return fmt.Sprintf("[%s] failed to send to %s: %s", stamp, e.Address, e.Reason)
	default:
		target := e.Address
		if target == "" {
			target = fmt.Sprintf("row %d", e.Row)
		}
		return fmt.Sprintf("[%s] skipped %s: %s", stamp, target, e.Reason)
	}
}

// Report is the ordered outcome of a run, one entry per input row.
type Report struct {
	RunID       string
	Entries     []Entry
	Completed   int
	Total       int
	State       State
	AbortReason string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Counts tallies entries by status.
func (r *Report) Counts() (sent, failed, skipped int) {
	if r == nil {
		return 0, 0, 0
	}
	for _, e := range r.Entries {
		switch e.Status {
		case StatusSent:
			sent++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return sent, failed, skipped
}

// Duration is the wall time between start and finish.
func (r *Report) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
