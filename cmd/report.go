package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/google"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/pipeline"
)

type reportOptions struct {
	digestOptions

	userEmail       string
	credentialsFile string
	days            int
}

func newReportCmd() *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate one email digest and print it as JSON",
		Long: `Generate one email digest for a mailbox and print the report as JSON on stdout.

The report is also written to the configured sink. Logs go to stderr.

Examples:
  # Gmail, using credentials saved from an OAuth flow
  inboxdigest report --user-email jane@example.com --credentials creds.json

  # A local mbox export, keeping reports on disk
  inboxdigest report --user-email jane@example.com --source mbox --mbox-path inbox.mbox --sink file

  # An IMAP account, storing reports in Valkey
  IMAP_PASSWORD=... inboxdigest report --user-email jane@example.com \
    --source imap --imap-addr imap.example.com:993 --imap-user jane \
    --sink valkey --valkey-url redis://localhost:6379/0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.loadEnv(cmd)
			return runReport(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.userEmail, "user-email", "", "Email address of the mailbox owner (required)")
	cmd.Flags().StringVar(&opts.credentialsFile, "credentials", "", "Google OAuth credentials JSON file (gmail source)")
	cmd.Flags().IntVar(&opts.days, "days", pipeline.DefaultDays, "Number of days to look back")
	_ = cmd.MarkFlagRequired("user-email")

	return cmd
}

func runReport(ctx context.Context, opts *reportOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := opts.newLogger(stderr)
	if err != nil {
		return err
	}
	logger = logging.WithOperation(logger, "report")

	req := pipeline.Request{
		UserEmail: opts.userEmail,
		Days:      opts.days,
		Trigger:   instrumentation.TriggerCLI,
	}
	if opts.credentialsFile != "" {
		creds, err := google.LoadCredentialsFile(opts.credentialsFile)
		if err != nil {
			return err
		}
		req.Credentials = creds
	}

	// A one-shot run has nothing to scrape, so instrumentation only runs
	// when traces are exported.
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Enabled = instrConfig.Enabled && instrConfig.TracingExporter != instrumentation.ExporterNone

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down instrumentation", logging.Err(err))
		}
	}()

	p, cleanup, err := opts.buildPipeline(ctx, logger, provider, instrConfig.AuditLogging)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := p.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
