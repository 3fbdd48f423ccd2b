package recipients

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/render"
)

const leadList = "\xEF\xBB\xBF First_Name ,Last_Name,EMAIL,Role,Company,Seats\n" +
	"John,Doe,john@acme.test,Manager,Acme Corp,12\n" +
	"Jane,Roe,,CTO,Globex,NaN\n" +
	"Max,Power, max@initech.test ,Engineer,Initech,\n"

func TestLoadNormalizesColumnsAndPreservesOrder(t *testing.T) {
	recs, err := Load(strings.NewReader(leadList))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}

	if got := recs[0]["first_name"]; got != "John" {
		t.Fatalf("expected normalized first_name column, got %q", got)
	}
	if got := recs[0]["seats"]; got != "12" {
		t.Fatalf("expected extra columns to be kept, got %q", got)
	}
	if recs[1].Eligible() {
		t.Fatalf("expected row without email to be ineligible")
	}
	if got := recs[1]["seats"]; got != "" {
		t.Fatalf("expected NaN cell to be treated as empty, got %q", got)
	}
	if got := recs[2].Email(); got != "max@initech.test" {
		t.Fatalf("expected trimmed email, got %q", got)
	}
}

func TestLoadMissingColumns(t *testing.T) {
	_, err := Load(strings.NewReader("first_name,email,notes\nJohn,john@acme.test,hi\n"))
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	var mc *common.MissingColumnsError
	if !errors.As(err, &mc) {
		t.Fatalf("expected MissingColumnsError, got %T", err)
	}
	want := []string{"last_name", "role", "company"}
	if !reflect.DeepEqual(mc.Columns, want) {
		t.Fatalf("missing columns = %v, want %v", mc.Columns, want)
	}
}

func TestLoadRejectsColumnsThatNormalizeAlike(t *testing.T) {
	table := "first_name,last_name,email,role,company,Email \n" +
		"John,Doe,john@acme.test,Manager,Acme Corp,other@acme.test\n"

	recs, err := Load(strings.NewReader(table))
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v (records %v)", err, recs)
	}
	if !strings.Contains(err.Error(), `"email" and "Email "`) {
		t.Fatalf("expected error to name both columns, got %v", err)
	}

	var mc *common.MissingColumnsError
	if errors.As(err, &mc) {
		t.Fatalf("duplicate columns should not be reported as missing")
	}
}

func TestCheckColumnsIgnoresBlankHeaders(t *testing.T) {
	if err := CheckColumns([]string{"first_name", "", "last_name", "email", " ", "role", "company"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadEmptyInput(t *testing.T) {
	if _, err := Load(strings.NewReader("  \n")); !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty table, got %v", err)
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	recs, err := Load(strings.NewReader("first_name,last_name,email,role,company\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}

func TestLoadMalformedRow(t *testing.T) {
	_, err := Load(strings.NewReader("first_name,last_name,email,role,company\nJohn,Doe\n"))
	if !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error for ragged row, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leadList.csv")
	if err := os.WriteFile(path, []byte(leadList), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	recs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, common.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing file, got %v", err)
	}
}

func TestRecordRendersThroughLookup(t *testing.T) {
	rec := Record{"first_name": "John", "company": ""}

	got := render.Render("Hi {First_Name}, welcome to {company}", rec)
	if got != "Hi John, welcome to [company]" {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestColumns(t *testing.T) {
	cols := Columns([]Record{{"a": "1"}, {"b": "2"}})
	if _, ok := cols["a"]; !ok {
		t.Fatalf("expected column a")
	}
	if _, ok := cols["b"]; !ok {
		t.Fatalf("expected column b")
	}
}
