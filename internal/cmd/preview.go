package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/drip-mailer/internal/campaign"
	"github.com/example/drip-mailer/internal/recipients"
	"github.com/example/drip-mailer/internal/render"
)

// placeholderSender stands in for the sender address when SMTP_USER is unset.
const placeholderSender = "your.email@streamax.com"

func sampleRecord() recipients.Record {
	return recipients.Record{
		recipients.ColumnFirstName: "John",
		recipients.ColumnCompany:   "Acme Corp",
		recipients.ColumnRole:      "Manager",
	}
}

func newPreviewCommand(opts *options) *cobra.Command {
	var (
		recipientsPath string
		row            int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the subject, body and signature for one row",
		Long: `Render the campaign for a single recipient without connecting anywhere.

Without --recipients a built-in sample row (John, Acme Corp, Manager) is used.
Unresolved placeholders appear as [name].`,
		RunE: func(cmd *cobra.Command, args []string) error {
			camp, err := campaign.Load(opts.campaignPath)
			if err != nil {
				return err
			}

			rec := sampleRecord()
			if recipientsPath != "" {
				recs, err := recipients.LoadFile(recipientsPath)
				if err != nil {
					return err
				}
				if row < 1 || row > len(recs) {
					return fmt.Errorf("row %d out of range (1-%d)", row, len(recs))
				}
				rec = recs[row-1]
			}

			sender := strings.TrimSpace(os.Getenv("SMTP_USER"))
			if sender == "" {
				sender = placeholderSender
			}

			block, err := camp.SignatureBlock(sender)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subject: %s\n\n", render.Render(camp.Subject, rec))
			fmt.Fprintf(out, "%s\n\n", render.Render(camp.Body, rec))
			fmt.Fprintf(out, "--- signature (%s) ---\n%s\n", camp.SignatureLayout(), block)
			return nil
		},
	}

	cmd.Flags().StringVar(&recipientsPath, "recipients", "", "recipient CSV file")
	cmd.Flags().IntVar(&row, "row", 1, "1-based row to preview")

	return cmd
}
