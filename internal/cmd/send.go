package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/drip-mailer/internal/campaign"
	"github.com/example/drip-mailer/internal/common"
	"github.com/example/drip-mailer/internal/config"
	"github.com/example/drip-mailer/internal/dispatch"
	"github.com/example/drip-mailer/internal/kafka/producer"
	kafkapublisher "github.com/example/drip-mailer/internal/kafka/publisher"
	"github.com/example/drip-mailer/internal/logger"
	"github.com/example/drip-mailer/internal/message"
	"github.com/example/drip-mailer/internal/recipients"
	"github.com/example/drip-mailer/internal/transport"
	"github.com/example/drip-mailer/internal/util"
)

func newSendCommand(opts *options) *cobra.Command {
	var (
		recipientsPath string
		dryRun         bool
		pacing         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send the campaign to every recipient row",
		Long: `Send one personalised message per recipient over a single SMTP session.

Rows without an email are skipped. A failed recipient does not stop the run;
a dropped session aborts it and the remaining rows are reported as skipped.
With --dry-run messages are rendered and handed to an in-memory transport.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return common.Configuration(err)
			}
			if cmd.Flags().Changed("pacing") {
				if pacing < 0 {
					return common.Configuration(errors.New("--pacing cannot be negative"))
				}
				cfg.Dispatch.PacingMillis = int(pacing / time.Millisecond)
			}

			base, err := logger.New(cfg.App)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}

			return runSend(cmd.Context(), cmd.OutOrStdout(), *base, cfg, sendParams{
				campaignPath:   opts.campaignPath,
				recipientsPath: recipientsPath,
				dryRun:         dryRun,
			})
		},
	}

	cmd.Flags().StringVar(&recipientsPath, "recipients", "", "recipient CSV file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render and record messages without contacting the SMTP server")
	cmd.Flags().DurationVar(&pacing, "pacing", 500*time.Millisecond, "delay between sends (overrides DISPATCH_PACING_MS)")
	_ = cmd.MarkFlagRequired("recipients")

	return cmd
}

type sendParams struct {
	campaignPath   string
	recipientsPath string
	dryRun         bool
}

func runSend(ctx context.Context, out io.Writer, base zerolog.Logger, cfg *config.Config, p sendParams) error {
	log := logger.Component(base, "send")

	identity, err := senderIdentity(cfg.SMTP)
	if err != nil {
		return err
	}

	camp, err := campaign.Load(p.campaignPath)
	if err != nil {
		return err
	}
	recs, err := recipients.LoadFile(p.recipientsPath)
	if err != nil {
		return err
	}

	var tr transport.Transport
	if p.dryRun {
		tr = transport.NewMockTransport(logger.Component(base, "transport"), transport.WithLatencyRange(0, 0))
		fmt.Fprintln(out, "dry run: messages will not leave this machine")
	} else {
		tr, err = transport.New(cfg.SMTP, logger.Component(base, "transport"))
		if err != nil {
			return err
		}
	}

	observers := []dispatch.Observer{
		dispatch.NewLogObserver(base),
		newProgressPrinter(out),
	}

	var outcomes *kafkapublisher.OutcomePublisher
	if cfg.Kafka.Enabled() && !p.dryRun {
		prod, err := producer.New(cfg.Kafka.Brokers, logger.Component(base, "kafka"))
		if err != nil {
			log.Error().Err(err).Msg("outcome events disabled: kafka producer unavailable")
		} else {
			defer func() {
				if err := prod.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close kafka producer")
				}
			}()
			outcomes = kafkapublisher.NewOutcomePublisher(prod, cfg.Kafka.OutcomeTopic, base)
			observers = append(observers, outcomes)
		}
	}

	d, err := dispatch.NewDispatcher(dispatch.Config{LogWindow: cfg.Dispatch.LogWindow}, dispatch.Dependencies{
		Transport: tr,
		Builder:   message.NewBuilder(),
		Observers: observers,
		Logger:    base,
		Now:       time.Now,
	})
	if err != nil {
		return err
	}

	fromName := strings.TrimSpace(cfg.SMTP.FromName)
	if fromName == "" {
		fromName = camp.FromName
	}

	block, err := camp.SignatureBlock(identity)
	if err != nil {
		return err
	}

	report, err := d.Run(ctx, dispatch.RunConfig{
		Recipients:      recs,
		SubjectTemplate: camp.Subject,
		BodyTemplate:    camp.Body,
		SignatureBlock:  block,
		Sender:          message.Identity{Name: fromName, Address: identity},
		Credentials:     dispatch.Credentials{Identity: identity, Secret: cfg.SMTP.Pass},
		Host:            cfg.SMTP.Host,
		Port:            cfg.SMTP.Port,
		Pacing:          cfg.Dispatch.Pacing(),
	})
	if err != nil {
		return err
	}

	if outcomes != nil {
		if err := outcomes.PublishSummary(ctx, report); err != nil {
			log.Error().Err(err).Msg("failed to publish run summary")
		}
	}

	printSummary(out, report)
	if report.State == dispatch.StateAborted {
		return fmt.Errorf("run %s aborted: %s", report.RunID, report.AbortReason)
	}
	return nil
}

// senderIdentity validates SMTP_USER as a bare address inside the allowed
// domain.
func senderIdentity(cfg config.SMTPConfig) (string, error) {
	identity, err := util.NormalizeEmail(cfg.User)
	if err != nil {
		return "", common.Configuration(fmt.Errorf("SMTP_USER: %w", err))
	}
	if err := util.EnsureDomain(identity, cfg.AllowedDomain); err != nil {
		return "", common.Configuration(fmt.Errorf("SMTP_USER: %w", err))
	}
	return identity, nil
}
