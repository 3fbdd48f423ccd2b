/*
Package cmd provides the CLI commands for drip-mailer.
*/
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// options holds the flags shared by every subcommand.
type options struct {
	campaignPath string
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree so flags never leak between invocations.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "drip-mailer",
		Short: "Personalised bulk email over one SMTP session",
		Long: `drip-mailer renders one personalised message per recipient row and
submits them over a single authenticated SMTP session, pacing the sends
and recording the outcome of every row.

SMTP credentials and runtime settings come from the environment (or a .env
file); message templates and the signature come from an optional campaign
YAML file.

Example:
  drip-mailer check --recipients leads.csv
  drip-mailer preview --recipients leads.csv --row 3
  drip-mailer send --recipients leads.csv --campaign q3.yaml
  drip-mailer send --recipients leads.csv --dry-run`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.campaignPath, "campaign", "", "campaign YAML file (built-in defaults when omitted)")

	root.AddCommand(newSendCommand(opts))
	root.AddCommand(newPreviewCommand(opts))
	root.AddCommand(newCheckCommand(opts))

	return root
}

// Execute runs the CLI with ctx, which is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
