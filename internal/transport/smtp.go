package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/config"
	"github.com/example/drip-mailer/internal/message"
)

// codeServiceClosing is the reply a server sends before dropping the channel.
const codeServiceClosing = 421

// SMTPOption configures the behaviour of the SMTP transport.
type SMTPOption func(*SMTPTransport)

// WithSMTPTLSConfig overrides the TLS configuration used for implicit TLS and
// STARTTLS. A nil config disables STARTTLS negotiation.
func WithSMTPTLSConfig(cfg *tls.Config) SMTPOption {
	return func(t *SMTPTransport) {
		t.tlsConfig = cfg
	}
}

// WithSMTPDialer swaps the network dialer used to establish SMTP connections.
func WithSMTPDialer(d Dialer) SMTPOption {
	return func(t *SMTPTransport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithSMTPAuth replaces the auth strategy built from the session credentials.
func WithSMTPAuth(factory func(identity, secret, host string) smtp.Auth) SMTPOption {
	return func(t *SMTPTransport) {
		if factory != nil {
			t.auth = factory
		}
	}
}

// WithSMTPImplicitTLS toggles TLS from the first byte (port 465 style).
func WithSMTPImplicitTLS(enabled bool) SMTPOption {
	return func(t *SMTPTransport) {
		t.implicitTLS = enabled
	}
}

// WithSMTPTimeout sets the deadline applied to every SMTP command.
func WithSMTPTimeout(d time.Duration) SMTPOption {
	return func(t *SMTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithSMTPHelloName customises the EHLO/HELO identity presented to the server.
func WithSMTPHelloName(name string) SMTPOption {
	return func(t *SMTPTransport) {
		if strings.TrimSpace(name) != "" {
			t.helloName = strings.TrimSpace(name)
		}
	}
}

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPTransport opens sessions on an SMTP submission server using net/smtp.
type SMTPTransport struct {
	logger      zerolog.Logger
	dialer      Dialer
	tlsConfig   *tls.Config
	implicitTLS bool
	timeout     time.Duration
	helloName   string
	auth        func(identity, secret, host string) smtp.Auth
}

// NewSMTPTransport constructs a Transport backed by net/smtp.
func NewSMTPTransport(logger zerolog.Logger, opts ...SMTPOption) *SMTPTransport {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	t := &SMTPTransport{
		logger:    logger,
		dialer:    &net.Dialer{Timeout: 30 * time.Second},
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		timeout:   30 * time.Second,
		helloName: "localhost",
		auth: func(identity, secret, host string) smtp.Auth {
			return smtp.PlainAuth("", identity, secret, host)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	return t
}

// NewSMTPTransportFromConfig applies the SMTP settings from cfg.
func NewSMTPTransportFromConfig(cfg config.SMTPConfig, logger zerolog.Logger, opts ...SMTPOption) *SMTPTransport {
	base := []SMTPOption{
		WithSMTPImplicitTLS(cfg.ImplicitTLS),
		WithSMTPTimeout(cfg.Timeout()),
		WithSMTPHelloName(cfg.HelloName),
	}
	return NewSMTPTransport(logger, append(base, opts...)...)
}

// Connect dials host:port, negotiates TLS and greets the server.
func (t *SMTPTransport) Connect(ctx context.Context, host string, port int) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(host) == "" {
		return nil, errors.New("smtp transport: host is required")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("smtp transport: invalid port %d", port)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp transport: dial %s: %w", addr, err)
	}

	s := &smtpSession{
		logger:  t.logger.With().Str("server", addr).Logger(),
		host:    host,
		conn:    conn,
		timeout: t.timeout,
		auth:    t.auth,
	}
	s.armDeadline(ctx)

	if t.implicitTLS {
		tlsConn := tls.Client(conn, t.sessionTLSConfig(host))
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("smtp transport: tls handshake: %w", err)
		}
		s.conn = tlsConn
	}

	client, err := smtp.NewClient(s.conn, host)
	if err != nil {
		_ = s.conn.Close()
		return nil, fmt.Errorf("smtp transport: new client: %w", err)
	}
	s.client = client

	if err := client.Hello(t.helloName); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("smtp transport: hello: %w", err)
	}

	if !t.implicitTLS && t.tlsConfig != nil {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(t.sessionTLSConfig(host)); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("smtp transport: starttls: %w", err)
			}
		}
	}

	s.logger.Debug().Bool("implicit_tls", t.implicitTLS).Msg("smtp session opened")
	return s, nil
}

func (t *SMTPTransport) sessionTLSConfig(host string) *tls.Config {
	var cfg *tls.Config
	if t.tlsConfig != nil {
		cfg = t.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

type smtpSession struct {
	logger  zerolog.Logger
	host    string
	conn    net.Conn
	client  *smtp.Client
	timeout time.Duration
	auth    func(identity, secret, host string) smtp.Auth

	closeOnce sync.Once
	closeErr  error
}

func (s *smtpSession) Authenticate(ctx context.Context, identity, secret string) error {
	s.armDeadline(ctx)
	if ok, _ := s.client.Extension("AUTH"); !ok {
		return errors.New("smtp transport: server does not support AUTH")
	}
	if err := s.client.Auth(s.auth(identity, secret, s.host)); err != nil {
		return fmt.Errorf("smtp transport: auth: %w", err)
	}
	return nil
}

func (s *smtpSession) Send(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return common.Send(errors.New("smtp transport: message is required"))
	}
	data, err := msg.Bytes()
	if err != nil {
		return common.Send(err)
	}

	s.armDeadline(ctx)
	if err := s.deliver(msg.From.Address, msg.To, data); err != nil {
		return s.classify(ctx, err)
	}
	return nil
}

func (s *smtpSession) deliver(from, to string, data []byte) error {
	if err := s.client.Mail(from); err != nil {
		return fmt.Errorf("smtp transport: mail from: %w", err)
	}
	if err := s.client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp transport: rcpt to %s: %w", to, err)
	}

	writer, err := s.client.Data()
	if err != nil {
		return fmt.Errorf("smtp transport: data: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp transport: data write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp transport: data close: %w", err)
	}
	return nil
}

// classify decides whether a failed transaction left the session usable. A
// 421 reply is terminal; anything else is probed with RSET.
func (s *smtpSession) classify(ctx context.Context, err error) error {
	code, body := classifySMTPError(err)
	event := s.logger.Debug().Err(err)
	if code != 0 {
		event = event.Int("smtp_code", code).Str("smtp_reply", body)
	}
	event.Msg("smtp transaction failed")

	if code == codeServiceClosing {
		return common.SessionBroken(err)
	}

	s.armDeadline(ctx)
	if rerr := s.client.Reset(); rerr != nil {
		s.logger.Warn().Err(rerr).Msg("smtp session failed reset probe")
		return common.SessionBroken(err)
	}
	return common.Send(err)
}

func (s *smtpSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.SetDeadline(time.Now().Add(s.quitTimeout()))
		if err := s.client.Quit(); err != nil {
			_ = s.client.Close()
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.closeErr = fmt.Errorf("smtp transport: quit: %w", err)
			}
		}
	})
	return s.closeErr
}

func (s *smtpSession) quitTimeout() time.Duration {
	if s.timeout > 0 && s.timeout < 5*time.Second {
		return s.timeout
	}
	return 5 * time.Second
}

// armDeadline bounds the next command by the per-command timeout and the
// context deadline, whichever comes first.
func (s *smtpSession) armDeadline(ctx context.Context) {
	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
}

func classifySMTPError(err error) (int, string) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, strings.TrimSpace(tpErr.Msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, "smtp: timeout"
	}

	return 0, ""
}
