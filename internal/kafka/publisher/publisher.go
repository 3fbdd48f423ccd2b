// Package publisher ships run outcomes to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/drip-mailer/internal/dispatch"
	"github.com/example/drip-mailer/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// Producer captures the subset of producer behaviour the publisher needs.
type Producer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
	PublishAsync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// OutcomePublisher turns dispatch progress into outcome events. It implements
// dispatch.Observer; events are keyed by run id so one run stays ordered on a
// single partition.
type OutcomePublisher struct {
	producer Producer
	topic    string
	logger   zerolog.Logger
	newID    func() string
}

// NewOutcomePublisher returns nil when prod is nil.
func NewOutcomePublisher(prod Producer, topic string, logger zerolog.Logger) *OutcomePublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &OutcomePublisher{
		producer: prod,
		topic:    topic,
		logger:   logger.With().Str("component", "outcome_publisher").Logger(),
		newID:    uuid.NewString,
	}
}

// Observe publishes one outcome event asynchronously. Failures are logged and
// never interrupt the run.
func (p *OutcomePublisher) Observe(_ context.Context, progress dispatch.Progress) {
	if err := p.PublishOutcome(progress); err != nil {
		p.logger.Warn().
			Err(err).
			Str("run_id", progress.RunID).
			Int("row", progress.Entry.Row).
			Msg("kafka publisher: outcome event dropped")
	}
}

// PublishOutcome enqueues the event for progress.
func (p *OutcomePublisher) PublishOutcome(progress dispatch.Progress) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	event := models.OutcomeEvent{
		EventID:    p.newID(),
		RunID:      progress.RunID,
		Row:        progress.Entry.Row,
		Recipient:  progress.Entry.Address,
		Status:     string(progress.Entry.Status),
		Reason:     progress.Entry.Reason,
		Completed:  progress.Completed,
		Total:      progress.Total,
		Source:     models.EventSource,
		OccurredAt: progress.Entry.Time,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal outcome event: %w", err)
	}

	if err := p.producer.PublishAsync(p.topic, []byte(event.RunID), headersFor("outcome", progress.Entry.Row), payload); err != nil {
		return fmt.Errorf("kafka publisher: publish outcome event: %w", err)
	}
	return nil
}

// PublishSummary writes the run summary synchronously.
func (p *OutcomePublisher) PublishSummary(_ context.Context, report *dispatch.Report) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}
	if report == nil {
		return errors.New("kafka publisher: report is required")
	}

	sent, failed, skipped := report.Counts()
	summary := models.RunSummary{
		RunID:          report.RunID,
		State:          string(report.State),
		AbortReason:    report.AbortReason,
		Rows:           len(report.Entries),
		Total:          report.Total,
		Completed:      report.Completed,
		Sent:           sent,
		Failed:         failed,
		Skipped:        skipped,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		DurationMillis: report.Duration().Milliseconds(),
		Source:         models.EventSource,
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal run summary: %w", err)
	}

	if err := p.producer.PublishSync(p.topic, []byte(summary.RunID), headersFor("summary", 0), payload); err != nil {
		return fmt.Errorf("kafka publisher: publish run summary: %w", err)
	}
	return nil
}

func headersFor(kind string, row int) map[string][]byte {
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
		"event-type":   []byte(kind),
	}
	if row > 0 {
		headers["row"] = []byte(strconv.Itoa(row))
	}
	return headers
}
