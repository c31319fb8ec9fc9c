package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/llm"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/mailbox"
	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/sink"
)

// Source kinds accepted by --source.
const (
	sourceGmail = "gmail"
	sourceIMAP  = mailbox.SourceIMAP
	sourceMbox  = mailbox.SourceMbox
)

// digestOptions holds the flags shared by the report and serve commands.
type digestOptions struct {
	// Logging
	debug     bool
	logFormat string

	// Mail source
	source       string
	mboxPath     string
	imapAddr     string
	imapUser     string
	imapPassword string
	imapMailbox  string
	imapInsecure bool

	// Report sink
	sink            string
	outputDir       string
	valkeyURL       string
	valkeyPassword  string
	valkeyKeyPrefix string
	s3Bucket        string
	s3Prefix        string
	s3Endpoint      string
	s3Region        string

	// Model
	llmProvider string
	llmModel    string

	// Fetching
	concurrency int
	rps         float64
}

func (o *digestOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	f.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	f.StringVar(&o.logFormat, "log-format", logging.FormatText, "Log format: text or json. Can also use LOG_FORMAT env var.")

	f.StringVar(&o.source, "source", sourceGmail, "Mail source: gmail, imap or mbox. Can also use DIGEST_SOURCE env var.")
	f.StringVar(&o.mboxPath, "mbox-path", "", "Path of the mbox file (mbox source). Can also use MBOX_PATH env var.")
	f.StringVar(&o.imapAddr, "imap-addr", "", "IMAP server host:port (imap source). Can also use IMAP_ADDR env var.")
	f.StringVar(&o.imapUser, "imap-user", "", "IMAP username. Can also use IMAP_USER env var.")
	f.StringVar(&o.imapPassword, "imap-password", "", "IMAP password. Prefer the IMAP_PASSWORD env var.")
	f.StringVar(&o.imapMailbox, "imap-mailbox", mailbox.DefaultIMAPMailbox, "IMAP mailbox to read")
	f.BoolVar(&o.imapInsecure, "imap-insecure", false, "Connect to IMAP without TLS (local test servers only)")

	f.StringVar(&o.sink, "sink", sink.KindFile, "Report sink: file, valkey, s3 or none. Can also use DIGEST_SINK env var.")
	f.StringVar(&o.outputDir, "output-dir", "reports", "Directory of the file sink. Can also use DIGEST_OUTPUT_DIR env var.")
	f.StringVar(&o.valkeyURL, "valkey-url", "", "Valkey URL, e.g. redis://localhost:6379/0. Can also use VALKEY_URL env var.")
	f.StringVar(&o.valkeyPassword, "valkey-password", "", "Valkey password. Can also use VALKEY_PASSWORD env var.")
	f.StringVar(&o.valkeyKeyPrefix, "valkey-key-prefix", sink.DefaultValkeyKeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	f.StringVar(&o.s3Bucket, "s3-bucket", "", "S3 bucket of the s3 sink. Can also use S3_BUCKET env var.")
	f.StringVar(&o.s3Prefix, "s3-prefix", "", "Key prefix inside the S3 bucket. Can also use S3_PREFIX env var.")
	f.StringVar(&o.s3Endpoint, "s3-endpoint", "", "Custom S3 endpoint for S3 compatible stores. Can also use S3_ENDPOINT env var.")
	f.StringVar(&o.s3Region, "s3-region", "", "AWS region of the bucket. Defaults to the AWS config chain.")

	f.StringVar(&o.llmProvider, "llm-provider", "", "Model provider: anthropic or openai. Can also use LLM_PROVIDER env var.")
	f.StringVar(&o.llmModel, "llm-model", "", "Model name. Can also use LLM_MODEL env var.")

	f.IntVar(&o.concurrency, "concurrency", pipeline.DefaultFetchConcurrency, "Parallel message fetches. Can also use DIGEST_FETCH_CONCURRENCY env var.")
	f.Float64Var(&o.rps, "rps", pipeline.DefaultFetchRPS, "Message fetches per second, 0 for no limit. Can also use DIGEST_FETCH_RPS env var.")
}

// loadEnv fills options from environment variables. Environment variables
// only apply when the flag was not explicitly set.
func (o *digestOptions) loadEnv(cmd *cobra.Command) {
	envString(cmd, "log-format", "LOG_FORMAT", &o.logFormat)
	envString(cmd, "source", "DIGEST_SOURCE", &o.source)
	envString(cmd, "mbox-path", "MBOX_PATH", &o.mboxPath)
	envString(cmd, "imap-addr", "IMAP_ADDR", &o.imapAddr)
	envString(cmd, "imap-user", "IMAP_USER", &o.imapUser)
	envString(cmd, "imap-password", "IMAP_PASSWORD", &o.imapPassword)
	envString(cmd, "sink", "DIGEST_SINK", &o.sink)
	envString(cmd, "output-dir", "DIGEST_OUTPUT_DIR", &o.outputDir)
	envString(cmd, "valkey-url", "VALKEY_URL", &o.valkeyURL)
	envString(cmd, "valkey-password", "VALKEY_PASSWORD", &o.valkeyPassword)
	envString(cmd, "valkey-key-prefix", "VALKEY_KEY_PREFIX", &o.valkeyKeyPrefix)
	envString(cmd, "s3-bucket", "S3_BUCKET", &o.s3Bucket)
	envString(cmd, "s3-prefix", "S3_PREFIX", &o.s3Prefix)
	envString(cmd, "s3-endpoint", "S3_ENDPOINT", &o.s3Endpoint)
	envString(cmd, "llm-provider", "LLM_PROVIDER", &o.llmProvider)
	envString(cmd, "llm-model", "LLM_MODEL", &o.llmModel)

	if !cmd.Flags().Changed("concurrency") {
		if v, err := strconv.Atoi(os.Getenv("DIGEST_FETCH_CONCURRENCY")); err == nil {
			o.concurrency = v
		}
	}
	if !cmd.Flags().Changed("rps") {
		if v, err := strconv.ParseFloat(os.Getenv("DIGEST_FETCH_RPS"), 64); err == nil {
			o.rps = v
		}
	}

	o.source = strings.ToLower(strings.TrimSpace(o.source))
	o.sink = strings.ToLower(strings.TrimSpace(o.sink))
}

// envString sets *target from env when the flag was not set explicitly.
func envString(cmd *cobra.Command, flag, env string, target *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

// newLogger builds the process logger. Logs go to w, never to stdout,
// which carries reports and the MCP stdio stream.
func (o *digestOptions) newLogger(w io.Writer) (*slog.Logger, error) {
	return logging.NewLogger(w, o.logFormat, o.debug)
}

// pipelineConfig applies the fetch flags to the environment defaults.
func (o *digestOptions) pipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.FetchConcurrency = o.concurrency
	cfg.FetchRPS = o.rps
	return cfg
}

// llmConfig applies the model flags to the environment configuration.
func (o *digestOptions) llmConfig() llm.Config {
	cfg := llm.ConfigFromEnv()
	if o.llmProvider != "" && !strings.EqualFold(o.llmProvider, cfg.Provider) {
		cfg.Provider = strings.ToLower(o.llmProvider)
		cfg.APIKey = llmAPIKey(cfg.Provider)
	}
	if o.llmModel != "" {
		cfg.Model = o.llmModel
	}
	return cfg
}

func llmAPIKey(provider string) string {
	if provider == llm.ProviderOpenAI {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// sourceFactory builds the mail source. The returned closer releases
// connections and is never nil.
func (o *digestOptions) sourceFactory(logger *slog.Logger, metrics *instrumentation.Metrics) (pipeline.SourceFactory, io.Closer, error) {
	switch o.source {
	case sourceGmail:
		return &pipeline.GmailSourceFactory{Metrics: metrics}, nopCloser{}, nil
	case sourceMbox:
		src, err := mailbox.NewMboxSource(o.mboxPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create mbox source: %w", err)
		}
		return &pipeline.StaticSourceFactory{Name: sourceMbox, Source: src}, nopCloser{}, nil
	case sourceIMAP:
		src, err := mailbox.NewIMAPSource(mailbox.IMAPConfig{
			Addr:     o.imapAddr,
			Username: o.imapUser,
			Password: o.imapPassword,
			Mailbox:  o.imapMailbox,
			Insecure: o.imapInsecure,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create imap source: %w", err)
		}
		return &pipeline.StaticSourceFactory{Name: sourceIMAP, Source: src}, src, nil
	default:
		return nil, nil, fmt.Errorf("unsupported source %q (supported: gmail, imap, mbox)", o.source)
	}
}

// reportSink builds the report sink. The returned closer is never nil.
func (o *digestOptions) reportSink(ctx context.Context) (sink.Sink, io.Closer, error) {
	switch o.sink {
	case sink.KindFile:
		s, err := sink.NewFileSink(o.outputDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file sink: %w", err)
		}
		return s, nopCloser{}, nil
	case sink.KindValkey:
		s, err := sink.NewValkeySink(sink.ValkeyConfig{
			URL:       o.valkeyURL,
			Password:  o.valkeyPassword,
			KeyPrefix: o.valkeyKeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create valkey sink: %w", err)
		}
		return s, s, nil
	case sink.KindS3:
		s, err := sink.NewS3Sink(ctx, sink.S3Config{
			Bucket:   o.s3Bucket,
			Prefix:   o.s3Prefix,
			Endpoint: o.s3Endpoint,
			Region:   o.s3Region,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create s3 sink: %w", err)
		}
		return s, nopCloser{}, nil
	case sink.KindNone, "":
		return sink.Discard{}, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported sink %q (supported: file, valkey, s3, none)", o.sink)
	}
}

// buildPipeline wires source, model and sink into a pipeline. The returned
// cleanup closes every opened connection.
func (o *digestOptions) buildPipeline(ctx context.Context, logger *slog.Logger, provider *instrumentation.Provider, audit instrumentation.AuditLoggingConfig) (*pipeline.Pipeline, func(), error) {
	var metrics *instrumentation.Metrics
	if provider != nil && provider.Enabled() {
		metrics = provider.Metrics()
	}

	cfg := o.pipelineConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	analyzer, err := llm.New(o.llmConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}

	sources, sourceCloser, err := o.sourceFactory(logger, metrics)
	if err != nil {
		return nil, nil, err
	}

	reportSink, sinkCloser, err := o.reportSink(ctx)
	if err != nil {
		_ = sourceCloser.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := errors.Join(sourceCloser.Close(), sinkCloser.Close()); err != nil {
			logger.Warn("failed to close connections", logging.Err(err))
		}
	}

	p, err := pipeline.New(cfg, sources, analyzer, reportSink,
		pipeline.WithLogger(logging.NewSlogAdapter(logging.WithService(logger, "pipeline"))),
		pipeline.WithMetrics(metrics),
		pipeline.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, audit)),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	logger.Debug("pipeline ready",
		logging.Source(sources.Kind()),
		logging.Sink(sink.NameOf(reportSink)),
		"provider", analyzer.Provider(),
		"model", analyzer.Model())
	return p, cleanup, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
