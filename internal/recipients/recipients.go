// Package recipients loads the recipient table of a run from CSV.
package recipients

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/render"
)

// Column names every recipient table must provide.
const (
	ColumnFirstName = "first_name"
	ColumnLastName  = "last_name"
	ColumnEmail     = "email"
	ColumnRole      = "role"
	ColumnCompany   = "company"
)

// RequiredColumns lists the required columns in reporting order.
var RequiredColumns = []string{ColumnFirstName, ColumnLastName, ColumnEmail, ColumnRole, ColumnCompany}

// Cells that spreadsheet exports use for "no value".
var missingMarkers = map[string]struct{}{
	"nan":  {},
	"NaN":  {},
	"null": {},
	"NULL": {},
	"N/A":  {},
	"#N/A": {},
	"<NA>": {},
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one normalized row keyed by lower-cased, trimmed column name.
type Record map[string]string

// Get implements render.Lookup. Keys are normalized before lookup.
func (r Record) Get(key string) (string, bool) {
	v, ok := r[render.Key(key)]
	return v, ok
}

// Email returns the trimmed email cell, or "" when absent.
func (r Record) Email() string {
	return strings.TrimSpace(r[ColumnEmail])
}

// Eligible reports whether the record can be sent to.
func (r Record) Eligible() bool {
	return r.Email() != ""
}

// Load parses a CSV table with a header row. Column names are normalized and
// the required columns are checked before any row is returned; a table missing
// columns fails with *common.MissingColumnsError.
func Load(in io.Reader) ([]Record, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, common.Configuration(fmt.Errorf("recipients: read: %w", err))
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, common.Configuration(errors.New("recipients: table is empty"))
	}

	header, err := gocsv.DefaultCSVReader(bytes.NewReader(data)).Read()
	if err != nil {
		return nil, common.Configuration(fmt.Errorf("recipients: read header: %w", err))
	}
	if err := CheckColumns(header); err != nil {
		return nil, err
	}

	rows, err := gocsv.CSVToMaps(bytes.NewReader(data))
	if err != nil {
		return nil, common.Configuration(fmt.Errorf("recipients: parse rows: %w", err))
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(row))
		for col, val := range row {
			key := render.Key(col)
			if key == "" {
				continue
			}
			if _, missing := missingMarkers[strings.TrimSpace(val)]; missing {
				val = ""
			}
			rec[key] = val
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadFile opens path and delegates to Load.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.Configuration(fmt.Errorf("recipients: open %s: %w", path, err))
	}
	defer f.Close()
	return Load(f)
}

// CheckColumns normalizes header and reports every required column it lacks.
// Two columns that normalize to the same name are rejected, since a row could
// not say which of them a placeholder refers to.
func CheckColumns(header []string) error {
	present := make(map[string]string, len(header))
	var dups []string
	for _, col := range header {
		key := render.Key(col)
		if key == "" {
			continue
		}
		if first, seen := present[key]; seen {
			dups = append(dups, fmt.Sprintf("%q and %q", first, col))
			continue
		}
		present[key] = col
	}
	if len(dups) > 0 {
		return common.Configuration(fmt.Errorf("recipients: duplicate columns after normalization: %s", strings.Join(dups, ", ")))
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &common.MissingColumnsError{Columns: missing}
	}
	return nil
}

// Columns returns the union of normalized column names across recs.
func Columns(recs []Record) map[string]struct{} {
	cols := make(map[string]struct{})
	for _, rec := range recs {
		for k := range rec {
			cols[k] = struct{}{}
		}
	}
	return cols
}
