package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/message"
)

// Scenario enumerates the supported mock behaviours.
type Scenario string

const (
	ScenarioSuccess   Scenario = "success"
	ScenarioTransient Scenario = "transient"
	ScenarioPermanent Scenario = "permanent"
	ScenarioTimeout   Scenario = "timeout"
	ScenarioBroken    Scenario = "broken"
)

// ErrMockAuthRejected is returned by Authenticate when the mock is configured
// to reject credentials.
var ErrMockAuthRejected = errors.New("mock: 535 authentication credentials invalid")

// ParseScenario maps a name to a Scenario, defaulting to success.
func ParseScenario(value string) Scenario {
	switch Scenario(strings.ToLower(strings.TrimSpace(value))) {
	case ScenarioPermanent:
		return ScenarioPermanent
	case ScenarioTransient:
		return ScenarioTransient
	case ScenarioTimeout:
		return ScenarioTimeout
	case ScenarioBroken:
		return ScenarioBroken
	default:
		return ScenarioSuccess
	}
}

// MockOption customizes the mock transport at construction time.
type MockOption func(*MockTransport)

// WithLatencyRange overrides the simulated latency of each send. Negative
// values are clamped to zero and max < min is coerced to min.
func WithLatencyRange(min, max time.Duration) MockOption {
	return func(m *MockTransport) {
		if min < 0 {
			min = 0
		}
		if max < 0 {
			max = 0
		}
		if max < min {
			max = min
		}
		m.minLatency = min
		m.maxLatency = max
	}
}

// WithDefaultScenario sets the behaviour for recipients without an explicit
// scenario.
func WithDefaultScenario(s Scenario) MockOption {
	return func(m *MockTransport) {
		m.defaultScenario = s
	}
}

// WithRecipientScenario pins the behaviour for one recipient address.
func WithRecipientScenario(address string, s Scenario) MockOption {
	return func(m *MockTransport) {
		m.perRecipient[strings.ToLower(strings.TrimSpace(address))] = s
	}
}

// WithRejectedAuth makes every Authenticate call fail.
func WithRejectedAuth() MockOption {
	return func(m *MockTransport) {
		m.rejectAuth = true
	}
}

// WithConnectError makes Connect fail with err.
func WithConnectError(err error) MockOption {
	return func(m *MockTransport) {
		m.connectErr = err
	}
}

// WithRandomSeed swaps the RNG seed used to sample latency.
func WithRandomSeed(seed int64) MockOption {
	return func(m *MockTransport) {
		m.rnd = rand.New(rand.NewSource(seed)) // #nosec G404 -- deterministic seed for tests.
	}
}

// MockTransport simulates a submission server without network calls. It
// backs the mock backend and dry runs, and records every accepted message.
type MockTransport struct {
	logger          zerolog.Logger
	minLatency      time.Duration
	maxLatency      time.Duration
	defaultScenario Scenario
	perRecipient    map[string]Scenario
	rejectAuth      bool
	connectErr      error

	mu       sync.Mutex
	rnd      *rand.Rand
	sent     []*message.Message
	sessions int
	closed   int
}

// NewMockTransport constructs a mock transport. By default every send succeeds
// after a latency between 25ms and 75ms.
func NewMockTransport(logger zerolog.Logger, opts ...MockOption) *MockTransport {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	m := &MockTransport{
		logger:          logger,
		minLatency:      25 * time.Millisecond,
		maxLatency:      75 * time.Millisecond,
		defaultScenario: ScenarioSuccess,
		perRecipient:    make(map[string]Scenario),
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Connect opens a simulated session.
func (m *MockTransport) Connect(ctx context.Context, host string, port int) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.connectErr != nil {
		return nil, m.connectErr
	}

	m.mu.Lock()
	m.sessions++
	m.mu.Unlock()

	m.logger.Debug().
		Str("transport", "mock").
		Str("host", host).
		Int("port", port).
		Msg("mock session opened")
	return &mockSession{parent: m}, nil
}

// Sent returns the messages accepted so far.
func (m *MockTransport) Sent() []*message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*message.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Sessions reports how many sessions were opened.
func (m *MockTransport) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// Closed reports how many sessions were closed.
func (m *MockTransport) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockTransport) scenarioFor(address string) Scenario {
	if s, ok := m.perRecipient[strings.ToLower(strings.TrimSpace(address))]; ok {
		return s
	}
	return m.defaultScenario
}

func (m *MockTransport) sampleLatency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxLatency <= m.minLatency {
		return m.minLatency
	}
	delta := m.maxLatency - m.minLatency
	return m.minLatency + time.Duration(m.rnd.Int63n(int64(delta)+1))
}

type mockSession struct {
	parent *MockTransport

	mu     sync.Mutex
	authed bool
	broken bool
	closed bool
}

func (s *mockSession) Authenticate(ctx context.Context, identity, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.parent.rejectAuth || identity == "" || secret == "" {
		return ErrMockAuthRejected
	}
	s.mu.Lock()
	s.authed = true
	s.mu.Unlock()
	return nil
}

func (s *mockSession) Send(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return common.Send(errors.New("mock: message is required"))
	}

	s.mu.Lock()
	authed, broken, closed := s.authed, s.broken, s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return common.SessionBroken(errors.New("mock: session closed"))
	case broken:
		return common.SessionBroken(errors.New("mock: 421 service not available"))
	case !authed:
		return common.Send(errors.New("mock: 530 authentication required"))
	}

	if latency := s.parent.sampleLatency(); latency > 0 {
		if err := sleep(ctx, latency); err != nil {
			return common.Send(err)
		}
	}

	scenario := s.parent.scenarioFor(msg.To)
	s.parent.logger.Debug().
		Str("transport", "mock").
		Str("scenario", string(scenario)).
		Str("message_id", msg.ID).
		Msg("mock send invoked")

	switch scenario {
	case ScenarioPermanent:
		return common.Send(fmt.Errorf("mock: 550 mailbox unavailable: %s", msg.To))
	case ScenarioTransient:
		return common.Send(errors.New("mock: 451 requested action aborted, try again later"))
	case ScenarioTimeout:
		if err := sleep(ctx, s.parent.maxLatency+s.parent.minLatency); err != nil {
			return common.Send(err)
		}
		return common.Send(errors.New("mock: command timed out"))
	case ScenarioBroken:
		s.mu.Lock()
		s.broken = true
		s.mu.Unlock()
		return common.SessionBroken(errors.New("mock: 421 service not available, closing channel"))
	default:
		s.parent.mu.Lock()
		s.parent.sent = append(s.parent.sent, msg)
		s.parent.mu.Unlock()
		return nil
	}
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.parent.mu.Lock()
	s.parent.closed++
	s.parent.mu.Unlock()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
