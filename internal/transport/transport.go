// Package transport submits rendered messages over one authenticated
// mail-submission session per run.
package transport

import (
	"context"

	"github.com/example/drip-mailer/internal/message"
)

// Transport opens sessions against a submission server.
type Transport interface {
	Connect(ctx context.Context, host string, port int) (Session, error)
}

// Session is a connected submission channel. Send errors matching
// common.ErrSessionBroken mean the session cannot carry further messages.
// Close is idempotent.
type Session interface {
	Authenticate(ctx context.Context, identity, secret string) error
	Send(ctx context.Context, msg *message.Message) error
	Close() error
}
