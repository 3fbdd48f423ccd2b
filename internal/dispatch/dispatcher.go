// Package dispatch drives a personalised send run: one authenticated session,
// one message per recipient, per-recipient outcomes and paced submission.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/message"
	"github.com/example/drip-mailer/internal/recipients"
	"github.com/example/drip-mailer/internal/render"
	"github.com/example/drip-mailer/internal/transport"
)

// DefaultLogWindow is the number of progress lines kept for observers.
const DefaultLogWindow = 10

// Config contains the dispatcher settings that do not change between runs.
type Config struct {
	LogWindow int
}

// Credentials authenticate the submission session.
type Credentials struct {
	Identity string
	Secret   string
}

// RunConfig carries everything one run needs. Templates are fixed for the
// duration of the run.
type RunConfig struct {
	Recipients      []recipients.Record
	SubjectTemplate string
	BodyTemplate    string
	SignatureBlock  string
	// Sender defaults to the credential identity when its address is empty.
	Sender      message.Identity
	Credentials Credentials
	Host        string
	Port        int
	Pacing      time.Duration
}

func (c RunConfig) validate() error {
	var problems []string
	if len(c.Recipients) == 0 {
		problems = append(problems, "no recipients")
	}
	if strings.TrimSpace(c.Credentials.Identity) == "" {
		problems = append(problems, "sender identity is required")
	}
	if c.Credentials.Secret == "" {
		problems = append(problems, "sender secret is required")
	}
	if strings.TrimSpace(c.Host) == "" {
		problems = append(problems, "server host is required")
	}
	if c.Pacing < 0 {
		problems = append(problems, "pacing cannot be negative")
	}
	if len(problems) > 0 {
		return common.Configuration(fmt.Errorf("dispatch: %s", strings.Join(problems, "; ")))
	}
	return nil
}

// MessageBuilder renders one recipient's message.
type MessageBuilder interface {
	Build(subjectTmpl, bodyTmpl, signature string, rec render.Lookup, sender message.Identity) (*message.Message, error)
}

// Dependencies collects the runtime collaborators required by the dispatcher.
type Dependencies struct {
	Transport transport.Transport
	Builder   MessageBuilder
	Observers []Observer
	Logger    zerolog.Logger
	Now       func() time.Time
	// Wait suspends between sends and reports false when ctx ended first.
	Wait func(ctx context.Context, d time.Duration) bool
	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

// Dispatcher executes runs one at a time.
type Dispatcher struct {
	cfg       Config
	transport transport.Transport
	builder   MessageBuilder
	observers []Observer
	logger    zerolog.Logger
	now       func() time.Time
	wait      func(ctx context.Context, d time.Duration) bool
	newRunID  func() string

	semaphore *semaphore.Weighted
}

// NewDispatcher validates the collaborators and returns a Dispatcher.
func NewDispatcher(cfg Config, deps Dependencies) (*Dispatcher, error) {
	if deps.Transport == nil {
		return nil, errors.New("dispatch: transport dependency is required")
	}
	if cfg.LogWindow < 0 {
		return nil, errors.New("dispatch: log window cannot be negative")
	}
	if cfg.LogWindow == 0 {
		cfg.LogWindow = DefaultLogWindow
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "dispatcher").Logger()

	builder := deps.Builder
	if builder == nil {
		builder = message.NewBuilder()
	}

	d := &Dispatcher{
		cfg:       cfg,
		transport: deps.Transport,
		builder:   builder,
		observers: deps.Observers,
		logger:    logger,
		now:       deps.Now,
		wait:      deps.Wait,
		newRunID:  deps.NewRunID,
		semaphore: semaphore.NewWeighted(1),
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.wait == nil {
		d.wait = wait
	}
	if d.newRunID == nil {
		d.newRunID = uuid.NewString
	}

	return d, nil
}

// Run sends one message per eligible recipient over a single session.
//
// Precondition failures return an error matching common.ErrConfiguration and
// connect or authenticate failures one matching common.ErrTransport; in both
// cases no report is produced. Per-recipient failures never surface as an
// error. A broken session or a cancelled context aborts the run, and the
// partial report is still returned with a nil error.
func (d *Dispatcher) Run(ctx context.Context, cfg RunConfig) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if !d.semaphore.TryAcquire(1) {
		return nil, common.Configuration(errors.New("dispatch: a run is already in progress"))
	}
	defer d.semaphore.Release(1)

	sender := cfg.Sender
	if strings.TrimSpace(sender.Address) == "" {
		sender.Address = strings.TrimSpace(cfg.Credentials.Identity)
	}

	report := &Report{
		RunID:     d.newRunID(),
		Entries:   make([]Entry, 0, len(cfg.Recipients)),
		Total:     eligible(cfg.Recipients),
		State:     StateRunning,
		StartedAt: d.now(),
	}
	log := d.logger.With().Str("run_id", report.RunID).Logger()

	session, err := d.transport.Connect(ctx, cfg.Host, cfg.Port)
	if err != nil {
		if session != nil {
			d.closeSession(log, session)
		}
		log.Error().Err(err).Str("host", cfg.Host).Int("port", cfg.Port).Msg("dispatch: connect failed")
		return nil, common.Transport(fmt.Errorf("dispatch: connect: %w", err))
	}
	defer d.closeSession(log, session)

	if err := session.Authenticate(ctx, cfg.Credentials.Identity, cfg.Credentials.Secret); err != nil {
		log.Error().Err(err).Str("identity", cfg.Credentials.Identity).Msg("dispatch: authentication failed")
		return nil, common.Transport(fmt.Errorf("dispatch: authenticate: %w", err))
	}

	log.Info().
		Int("rows", len(cfg.Recipients)).
		Int("eligible", report.Total).
		Dur("pacing", cfg.Pacing).
		Msg("dispatch: run started")

	win := newWindow(d.cfg.LogWindow)
	// In-flight sends are not interrupted; cancellation is honoured between recipients.
	sendCtx := context.WithoutCancel(ctx)

	for i, rec := range cfg.Recipients {
		if ctx.Err() != nil {
			d.abort(ctx, report, win, cfg.Recipients, i, reasonCancelled)
			break
		}

		entry := Entry{Row: i + 1, Address: rec.Email()}
		if entry.Address == "" {
			entry.Status = StatusSkipped
			entry.Reason = reasonMissingEmail
			d.record(ctx, report, win, entry)
			continue
		}

		msg, err := d.builder.Build(cfg.SubjectTemplate, cfg.BodyTemplate, cfg.SignatureBlock, rec, sender)
		if err != nil {
			report.Completed++
			entry.Status = StatusFailed
			entry.Reason = common.TruncateReason(err.Error(), common.DefaultReasonLimit)
			d.record(ctx, report, win, entry)
			continue
		}

		err = session.Send(sendCtx, msg)
		report.Completed++
		if err != nil {
			entry.Status = StatusFailed
			entry.Reason = common.TruncateReason(err.Error(), common.DefaultReasonLimit)
			d.record(ctx, report, win, entry)
			if errors.Is(err, common.ErrSessionBroken) {
				log.Error().Err(err).Int("row", entry.Row).Msg("dispatch: session unusable, aborting run")
				d.abort(ctx, report, win, cfg.Recipients, i+1, reasonAborted)
				break
			}
		} else {
			entry.Status = StatusSent
			d.record(ctx, report, win, entry)
		}

		if i < len(cfg.Recipients)-1 && cfg.Pacing > 0 && !d.wait(ctx, cfg.Pacing) {
			d.abort(ctx, report, win, cfg.Recipients, i+1, reasonCancelled)
			break
		}
	}

	if report.State == StateRunning {
		report.State = StateCompleted
	}
	report.FinishedAt = d.now()

	sent, failed, skipped := report.Counts()
	event := log.Info()
	if report.State == StateAborted {
		event = log.Warn().Str("abort_reason", report.AbortReason)
	}
	event.
		Str("state", string(report.State)).
		Int("sent", sent).
		Int("failed", failed).
		Int("skipped", skipped).
		Dur("duration", report.Duration()).
		Msg("dispatch: run finished")

	return report, nil
}

func (d *Dispatcher) record(ctx context.Context, report *Report, win *window, entry Entry) {
	entry.Time = d.now()
	report.Entries = append(report.Entries, entry)
	win.push(entry.Line())

	p := Progress{
		RunID:     report.RunID,
		Completed: report.Completed,
		Total:     report.Total,
		Entry:     entry,
	}
	for _, obs := range d.observers {
		if obs == nil {
			continue
		}
		p.Window = win.snapshot()
		obs.Observe(ctx, p)
	}
}

// abort marks rows from index start onward as skipped.
func (d *Dispatcher) abort(ctx context.Context, report *Report, win *window, rows []recipients.Record, start int, reason string) {
	report.State = StateAborted
	report.AbortReason = reason
	for i := start; i < len(rows); i++ {
		d.record(ctx, report, win, Entry{
			Row:     i + 1,
			Address: rows[i].Email(),
			Status:  StatusSkipped,
			Reason:  reason,
		})
	}
}

func (d *Dispatcher) closeSession(log zerolog.Logger, session transport.Session) {
	if err := session.Close(); err != nil {
		log.Warn().Err(err).Msg("dispatch: closing session failed")
	}
}

func eligible(rows []recipients.Record) int {
	n := 0
	for _, rec := range rows {
		if rec.Eligible() {
			n++
		}
	}
	return n
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
