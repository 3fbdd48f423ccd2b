package common

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used to classify failures across the dispatch pipeline.
// Callers match them with errors.Is; the helpers below annotate an
// underlying cause with the matching class.
var (
	// ErrConfiguration marks run-level precondition failures: missing
	// credentials, an empty recipient set or missing required columns.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport marks connect or authenticate failures.
	ErrTransport = errors.New("transport error")
	// ErrValidation marks a single recipient that cannot become a message.
	ErrValidation = errors.New("validation error")
	// ErrSend marks a transport rejection of one message.
	ErrSend = errors.New("send error")
	// ErrSessionBroken marks a transport session that can no longer carry
	// messages. A send error wrapping it aborts the remainder of a run.
	ErrSessionBroken = errors.New("session broken")
)

// Configuration annotates err as a configuration failure.
func Configuration(err error) error {
	return wrap(ErrConfiguration, err)
}

// Transport annotates err as a connect/authenticate failure.
func Transport(err error) error {
	return wrap(ErrTransport, err)
}

// Validation annotates err as a per-recipient validation failure.
func Validation(err error) error {
	return wrap(ErrValidation, err)
}

// Send annotates err as a per-message send failure.
func Send(err error) error {
	return wrap(ErrSend, err)
}

// SessionBroken annotates a send failure after which the session is unusable.
// The result matches both ErrSend and ErrSessionBroken.
func SessionBroken(err error) error {
	if err == nil {
		return fmt.Errorf("%w: %w", ErrSend, ErrSessionBroken)
	}
	return fmt.Errorf("%w: %w: %w", ErrSend, ErrSessionBroken, err)
}

func wrap(class, err error) error {
	if err == nil {
		return class
	}
	if errors.Is(err, class) {
		return err
	}
	return fmt.Errorf("%w: %w", class, err)
}

// MissingColumnsError reports required recipient columns absent from the
// input header. It matches ErrConfiguration.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// Unwrap lets errors.Is(err, ErrConfiguration) succeed.
func (e *MissingColumnsError) Unwrap() error {
	return ErrConfiguration
}
