package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/example/drip-mailer/internal/dispatch"
)

type progressPrinter struct {
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

// Observe prints the newest window line with the running percentage.
func (p *progressPrinter) Observe(_ context.Context, progress dispatch.Progress) {
	line := progress.Entry.Line()
	if n := len(progress.Window); n > 0 {
		line = progress.Window[n-1]
	}
	fmt.Fprintf(p.out, "%3.0f%% %s\n", progress.Fraction()*100, line)
}

func printSummary(out io.Writer, report *dispatch.Report) {
	sent, failed, skipped := report.Counts()
	fmt.Fprintf(out, "\nrun %s %s in %s\n", report.RunID, report.State, report.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "  sent: %d  failed: %d  skipped: %d  (eligible %d of %d rows)\n",
		sent, failed, skipped, report.Total, len(report.Entries))
	if report.AbortReason != "" {
		fmt.Fprintf(out, "  abort reason: %s\n", report.AbortReason)
	}
	for _, e := range report.Entries {
		if e.Status == dispatch.StatusFailed {
			fmt.Fprintf(out, "  row %d %s: %s\n", e.Row, e.Address, e.Reason)
		}
	}
}
