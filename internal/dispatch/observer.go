package dispatch

import (
	"context"
	"reflect"

	"github.com/rs/zerolog"
)

// Progress is pushed to observers after every recipient.
type Progress struct {
	RunID     string
	Completed int
	Total     int
	Entry     Entry
	// Window holds the most recent log lines, oldest first. It is a copy.
	Window []string
}

// Fraction reports progress as a value in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	return float64(p.Completed) / float64(p.Total)
}

// Observer receives progress notifications. Delivery is best effort; an
// observer must not block the run for long.
type Observer interface {
	Observe(ctx context.Context, p Progress)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, p Progress)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, p Progress) {
	f(ctx, p)
}

// LogObserver writes each outcome to a zerolog logger.
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver constructs a LogObserver.
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &LogObserver{logger: logger.With().Str("component", "dispatch_progress").Logger()}
}

// Observe logs sent entries at info, failures at warn and skips at debug.
func (o *LogObserver) Observe(_ context.Context, p Progress) {
	var event *zerolog.Event
	switch p.Entry.Status {
	case StatusSent:
		event = o.logger.Info()
	case StatusFailed:
		event = o.logger.Warn().Str("reason", p.Entry.Reason)
	default:
		event = o.logger.Debug().Str("reason", p.Entry.Reason)
	}
	event.
		Str("run_id", p.RunID).
		Int("row", p.Entry.Row).
		Str("recipient", p.Entry.Address).
		Str("status", string(p.Entry.Status)).
		Int("completed", p.Completed).
		Int("total", p.Total).
		Msg("dispatch: recipient processed")
}

// window keeps the last size lines.
type window struct {
	size  int
	lines []string
}

func newWindow(size int) *window {
	if size < 1 {
		size = 1
	}
	return &window{size: size, lines: make([]string, 0, size)}
}

func (w *window) push(line string) {
	if len(w.lines) == w.size {
		copy(w.lines, w.lines[1:])
		w.lines = w.lines[:w.size-1]
	}
	w.lines = append(w.lines, line)
}

func (w *window) snapshot() []string {
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}
