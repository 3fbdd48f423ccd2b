package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/drip-mailer/internal/campaign"
	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/config"
	"github.com/example/drip-mailer/internal/recipients"
)

const leadsCSV = "First_Name,Last_Name, Email ,Role,Company\n" +
	"John,Doe,john@acme.test,Manager,Acme\n" +
	"Nobody,Here,,Intern,Acme\n" +
	"Mary,Major,mary@globex.test,CTO,\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPreviewUsesSampleRow(t *testing.T) {
	t.Setenv("SMTP_USER", "")

	out, err := execute(t, "preview")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Subject: Streamlining Operations at Acme Corp",
		"Hi John,",
		"As someone working as a Manager",
		placeholderSender,
		"Email Disclaimer",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected preview to contain %q:\n%s", want, out)
		}
	}
}

func TestPreviewSelectedRow(t *testing.T) {
	path := writeFile(t, "leads.csv", leadsCSV)

	out, err := execute(t, "preview", "--recipients", path, "--row", "3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Subject: Streamlining Operations at [company]") {
		t.Fatalf("expected unresolved company placeholder:\n%s", out)
	}

	if _, err := execute(t, "preview", "--recipients", path, "--row", "9"); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestCheckReportsProblems(t *testing.T) {
	path := writeFile(t, "leads.csv", leadsCSV)
	camp := writeFile(t, "campaign.yaml", "subject: \"Hello {first_name} from {city}\"\n")

	out, err := execute(t, "check", "--recipients", path, "--campaign", camp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"rows: 3, eligible: 2",
		"rows without email (skipped): 2",
		"placeholders with no matching column: city",
		`column "company" is blank in 1 eligible rows`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected check output to contain %q:\n%s", want, out)
		}
	}
}

func TestCheckMissingColumns(t *testing.T) {
	path := writeFile(t, "leads.csv", "first_name,email\nJohn,john@acme.test\n")

	_, err := execute(t, "check", "--recipients", path)
	var missing *common.MissingColumnsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing columns error, got %v", err)
	}
	if strings.Join(missing.Columns, ",") != "last_name,role,company" {
		t.Fatalf("unexpected missing columns %v", missing.Columns)
	}
}

func TestInspectAllClear(t *testing.T) {
	c := campaign.Defaults()
	res := inspect(&c, []recipients.Record{{
		"first_name": "John", "last_name": "Doe", "email": "john@acme.test", "role": "CTO", "company": "Acme",
	}})
	if res.Eligible != 1 || len(res.Unsatisfiable) != 0 || len(res.MissingEmail) != 0 || len(res.EmptyByColumn) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSendDryRun(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "disabled")
	t.Setenv("TRANSPORT_BACKEND", "smtp")
	t.Setenv("SMTP_HOST", "smtp.streamax.com")
	t.Setenv("SMTP_USER", "jane@streamax.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("SMTP_ALLOWED_DOMAIN", "streamax.com")
	t.Setenv("KAFKA_BROKERS", "")
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := writeFile(t, "leads.csv", leadsCSV)

	out, err := execute(t, "send", "--recipients", path, "--dry-run", "--pacing", "0s")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	for _, want := range []string{
		"dry run",
		"sent to john@acme.test",
		"skipped row 2: missing email",
		"sent to mary@globex.test",
		"sent: 2  failed: 0  skipped: 1  (eligible 2 of 3 rows)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected send output to contain %q:\n%s", want, out)
		}
	}
}

func TestSendRejectsForeignIdentity(t *testing.T) {
	_, err := senderIdentity(config.SMTPConfig{User: "jane@gmail.com", AllowedDomain: "streamax.com"})
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := senderIdentity(config.SMTPConfig{User: "Jane <jane@streamax.com>"}); err == nil {
		t.Fatalf("expected error for display-name identity")
	}
	got, err := senderIdentity(config.SMTPConfig{User: "Jane@Streamax.com", AllowedDomain: "@streamax.com"})
	if err != nil || got != "jane@streamax.com" {
		t.Fatalf("unexpected identity %q (%v)", got, err)
	}
}

func TestRunSendTransportFailure(t *testing.T) {
	path := writeFile(t, "leads.csv", leadsCSV)
	cfg := &config.Config{
		SMTP: config.SMTPConfig{
			Backend: "carrier-pigeon",
			Host:    "smtp.streamax.com",
			Port:    465,
			User:    "jane@streamax.com",
			Pass:    "secret",
		},
		Dispatch: config.DispatchConfig{LogWindow: 10},
	}

	var out bytes.Buffer
	err := runSend(context.Background(), &out, zerolog.Nop(), cfg, sendParams{recipientsPath: path})
	if err == nil || !strings.Contains(err.Error(), "unsupported backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}
