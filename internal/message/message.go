// Package message turns a recipient record and the run's templates into one
// addressed HTML message.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/render"
	"github.com/example/drip-mailer/internal/util"
)

const (
	lineBreak          = "<br>"
	signatureSeparator = "<br><br>"
)

// Identity is a display name plus address.
type Identity struct {
	Name    string
	Address string
}

// String formats the identity as a From header value.
func (i Identity) String() string {
	if i.Name == "" {
		return i.Address
	}
	return fmt.Sprintf("%s <%s>", i.Name, i.Address)
}

// Message is a fully rendered email for one recipient.
type Message struct {
	ID      string
	From    Identity
	To      string
	Subject string
	HTML    string
	Date    time.Time
}

// MIME assembles the message as a go-mail Msg ready to be written to an SMTP
// DATA stream.
func (m *Message) MIME() (*mail.Msg, error) {
	if m == nil {
		return nil, errors.New("message: nil message")
	}

	msg := mail.NewMsg()
	var err error
	if m.From.Name != "" {
		err = msg.FromFormat(m.From.Name, m.From.Address)
	} else {
		err = msg.From(m.From.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("message: from: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("message: to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetMessageIDWithValue(m.ID)
	if m.Date.IsZero() {
		msg.SetDate()
	} else {
		msg.SetDateWithValue(m.Date)
	}
	msg.SetBodyString(mail.TypeTextHTML, m.HTML)
	return msg, nil
}

// Bytes renders the MIME representation.
func (m *Message) Bytes() ([]byte, error) {
	msg, err := m.MIME()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Option customises a Builder.
type Option func(*Builder)

// WithIDGenerator replaces the generator for the local part of Message-IDs.
func WithIDGenerator(gen func() string) Option {
	return func(b *Builder) {
		if gen != nil {
			b.newID = gen
		}
	}
}

// WithClock overrides the clock used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// Builder renders per-recipient messages. It holds no per-run state and is
// safe for concurrent use.
type Builder struct {
	newID func() string
	now   func() time.Time
}

// NewBuilder constructs a Builder with random UUID message identifiers.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build renders subjectTmpl and bodyTmpl against rec and appends signature.
// Body line breaks become <br>. The recipient is rec's email field; a blank
// email or a sender address without a domain yields an error matching
// common.ErrValidation.
func (b *Builder) Build(subjectTmpl, bodyTmpl, signature string, rec render.Lookup, sender Identity) (*Message, error) {
	to := ""
	if rec != nil {
		if v, ok := rec.Get("email"); ok {
			to = strings.TrimSpace(v)
		}
	}
	if to == "" {
		return nil, common.Validation(errors.New("recipient email is empty"))
	}

	domain := util.DomainOf(sender.Address)
	if domain == "" {
		return nil, common.Validation(fmt.Errorf("sender address %q has no domain", sender.Address))
	}

	subject := sanitizeHeader(render.Render(subjectTmpl, rec))
	body := render.Render(bodyTmpl, rec)

	return &Message{
		ID:      b.newID() + "@" + domain,
		From:    Identity{Name: strings.TrimSpace(sender.Name), Address: strings.TrimSpace(sender.Address)},
		To:      to,
		Subject: subject,
		HTML:    toHTMLLines(body) + signatureSeparator + signature,
		Date:    b.now(),
	}, nil
}

func toHTMLLines(body string) string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.ReplaceAll(normalized, "\n", lineBreak)
}

func sanitizeHeader(value string) string {
	clean := strings.ReplaceAll(value, "\r", " ")
	clean = strings.ReplaceAll(clean, "\n", " ")
	return strings.TrimSpace(clean)
}
