package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/drip-mailer/internal/campaign"
	"github.com/example/drip-mailer/internal/recipients"
	"github.com/example/drip-mailer/internal/render"
)

// checkResult summarises what a send would do with a recipient table.
type checkResult struct {
	Rows            int
	Eligible        int
	MissingEmail    []int
	Unsatisfiable   []string
	EmptyByColumn   map[string]int
	TemplateColumns []string
}

func inspect(camp *campaign.Campaign, recs []recipients.Record) checkResult {
	res := checkResult{Rows: len(recs), EmptyByColumn: make(map[string]int)}

	columns := recipients.Columns(recs)
	seen := make(map[string]struct{})
	for _, key := range append(render.Placeholders(camp.Subject), render.Placeholders(camp.Body)...) {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.TemplateColumns = append(res.TemplateColumns, key)
		if _, ok := columns[key]; !ok {
			res.Unsatisfiable = append(res.Unsatisfiable, key)
		}
	}

	for i, rec := range recs {
		if !rec.Eligible() {
			res.MissingEmail = append(res.MissingEmail, i+1)
			continue
		}
		res.Eligible++
		for _, key := range res.TemplateColumns {
			if v, ok := rec.Get(key); ok && strings.TrimSpace(v) == "" {
				res.EmptyByColumn[key]++
			}
		}
	}
	return res
}

func newCheckCommand(opts *options) *cobra.Command {
	var recipientsPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a recipient file against the campaign",
		Long: `Check a recipient CSV before sending.

This validates:
  - required columns (first_name, last_name, email, role, company)
  - placeholders that no column can satisfy
  - rows without an email address (they will be skipped)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			camp, err := campaign.Load(opts.campaignPath)
			if err != nil {
				return err
			}
			recs, err := recipients.LoadFile(recipientsPath)
			if err != nil {
				return err
			}

			res := inspect(camp, recs)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "rows: %d, eligible: %d\n", res.Rows, res.Eligible)
			if len(res.MissingEmail) > 0 {
				fmt.Fprintf(out, "rows without email (skipped): %s\n", joinInts(res.MissingEmail))
			}
			if len(res.Unsatisfiable) > 0 {
				fmt.Fprintf(out, "placeholders with no matching column: %s\n", strings.Join(res.Unsatisfiable, ", "))
			}
			keys := make([]string, 0, len(res.EmptyByColumn))
			for k := range res.EmptyByColumn {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "column %q is blank in %d eligible rows\n", k, res.EmptyByColumn[k])
			}
			if len(res.Unsatisfiable) == 0 && len(res.MissingEmail) == 0 && len(keys) == 0 {
				fmt.Fprintln(out, "✓ recipients are ready to send")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientsPath, "recipients", "", "recipient CSV file")
	_ = cmd.MarkFlagRequired("recipients")

	return cmd
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
