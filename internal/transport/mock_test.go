package transport_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/transport"
)

func TestMockTransportScenarios(t *testing.T) {
	tests := []struct {
		name       string
		scenario   transport.Scenario
		wantErr    bool
		wantBroken bool
	}{
		{name: "success", scenario: transport.ScenarioSuccess},
		{name: "permanent", scenario: transport.ScenarioPermanent, wantErr: true},
		{name: "transient", scenario: transport.ScenarioTransient, wantErr: true},
		{name: "timeout", scenario: transport.ScenarioTimeout, wantErr: true},
		{name: "broken", scenario: transport.ScenarioBroken, wantErr: true, wantBroken: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mock := transport.NewMockTransport(zerolog.New(io.Discard),
				transport.WithLatencyRange(0, 0),
				transport.WithDefaultScenario(tc.scenario),
			)
			sess := openMock(t, mock)
			defer sess.Close()

			err := sess.Send(context.Background(), testMessage("john@acme.test"))
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if tc.wantErr && !errors.Is(err, common.ErrSend) {
				t.Fatalf("expected send error class, got %v", err)
			}
			if errors.Is(err, common.ErrSessionBroken) != tc.wantBroken {
				t.Fatalf("unexpected broken state for %v", err)
			}
			if !tc.wantErr && len(mock.Sent()) != 1 {
				t.Fatalf("expected message to be recorded")
			}
		})
	}
}

func TestMockTransportRecipientScenarioAndBrokenSession(t *testing.T) {
	mock := transport.NewMockTransport(zerolog.New(io.Discard),
		transport.WithLatencyRange(0, 0),
		transport.WithRecipientScenario("Bounce@Acme.test", transport.ScenarioPermanent),
		transport.WithRecipientScenario("drop@acme.test", transport.ScenarioBroken),
	)
	sess := openMock(t, mock)

	if err := sess.Send(context.Background(), testMessage("bounce@acme.test")); err == nil {
		t.Fatalf("expected permanent failure for pinned recipient")
	}
	if err := sess.Send(context.Background(), testMessage("john@acme.test")); err != nil {
		t.Fatalf("expected success after recipient failure, got %v", err)
	}
	if err := sess.Send(context.Background(), testMessage("drop@acme.test")); !errors.Is(err, common.ErrSessionBroken) {
		t.Fatalf("expected broken session, got %v", err)
	}
	if err := sess.Send(context.Background(), testMessage("john@acme.test")); !errors.Is(err, common.ErrSessionBroken) {
		t.Fatalf("expected broken session to stay broken, got %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("unexpected second close error: %v", err)
	}
	if mock.Sessions() != 1 || mock.Closed() != 1 {
		t.Fatalf("expected one session opened and closed once, got %d/%d", mock.Sessions(), mock.Closed())
	}
	if len(mock.Sent()) != 1 {
		t.Fatalf("expected exactly one accepted message, got %d", len(mock.Sent()))
	}
}

func TestMockTransportAuthAndConnectFailures(t *testing.T) {
	mock := transport.NewMockTransport(zerolog.New(io.Discard), transport.WithRejectedAuth())
	sess, err := mock.Connect(context.Background(), "smtp.test", 465)
	if err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if err := sess.Authenticate(context.Background(), "jane@streamax.com", "secret"); !errors.Is(err, transport.ErrMockAuthRejected) {
		t.Fatalf("expected auth rejection, got %v", err)
	}

	connectErr := errors.New("no route to host")
	mock = transport.NewMockTransport(zerolog.New(io.Discard), transport.WithConnectError(connectErr))
	if _, err := mock.Connect(context.Background(), "smtp.test", 465); !errors.Is(err, connectErr) {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestMockSendRequiresAuthentication(t *testing.T) {
	mock := transport.NewMockTransport(zerolog.New(io.Discard), transport.WithLatencyRange(0, 0))
	sess, err := mock.Connect(context.Background(), "smtp.test", 465)
	if err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if err := sess.Send(context.Background(), testMessage("john@acme.test")); err == nil {
		t.Fatalf("expected error for unauthenticated send")
	}
}

func TestParseScenario(t *testing.T) {
	cases := map[string]transport.Scenario{
		"":           transport.ScenarioSuccess,
		"PERMANENT":  transport.ScenarioPermanent,
		" transient": transport.ScenarioTransient,
		"timeout":    transport.ScenarioTimeout,
		"broken":     transport.ScenarioBroken,
		"unknown":    transport.ScenarioSuccess,
	}
	for input, want := range cases {
		if got := transport.ParseScenario(input); got != want {
			t.Fatalf("ParseScenario(%q) = %q, want %q", input, got, want)
		}
	}
}

func openMock(t *testing.T, mock *transport.MockTransport) transport.Session {
	t.Helper()
	sess, err := mock.Connect(context.Background(), "smtp.test", 465)
	if err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if err := sess.Authenticate(context.Background(), "jane@streamax.com", "secret"); err != nil {
		t.Fatalf("unexpected auth error: %v", err)
	}
	return sess
}
