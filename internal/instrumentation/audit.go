package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// RunInvocation captures everything about a single report pipeline run for
// audit logging.
//
// # Privacy Considerations
//
// The UserEmail field contains PII. When logging, consider:
//   - Using UserDomain() to get only the domain for metrics/general logs
//   - Only logging full email in audit-specific log streams
//   - Ensuring audit logs have appropriate access controls
type RunInvocation struct {
	RunID   string
	Trigger string // cli, http, websocket, mcp

	// Mailbox owner as given in the request
	UserEmail string

	Source string // gmail, imap, mbox
	Days   int

	// Outcome counters
	TotalEmails      int
	FailedEmails     int
	SummarizedEmails int

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewRunInvocation creates a new RunInvocation with timing started.
// Call Complete() when the run finishes.
func NewRunInvocation(trigger string) *RunInvocation {
	return &RunInvocation{
		Trigger:   trigger,
		StartTime: time.Now(),
	}
}

// UserDomain returns the domain portion of the user's email for lower-cardinality logging.
func (ri *RunInvocation) UserDomain() string {
	return ExtractUserDomain(ri.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (ri *RunInvocation) Status() string {
	if ri.Success {
		return StatusSuccess
	}
	return StatusError
}

// WithRunID sets the run identifier.
func (ri *RunInvocation) WithRunID(runID string) *RunInvocation {
	ri.RunID = runID
	return ri
}

// WithUser sets the mailbox owner.
func (ri *RunInvocation) WithUser(email string) *RunInvocation {
	ri.UserEmail = email
	return ri
}

// WithSource sets the mailbox source kind and look-back window.
func (ri *RunInvocation) WithSource(source string, days int) *RunInvocation {
	ri.Source = source
	ri.Days = days
	return ri
}

// WithCounts sets the run's email counters.
func (ri *RunInvocation) WithCounts(total, failed, summarized int) *RunInvocation {
	ri.TotalEmails = total
	ri.FailedEmails = failed
	ri.SummarizedEmails = summarized
	return ri
}

// WithSpanContext extracts trace context from the current span.
func (ri *RunInvocation) WithSpanContext(ctx context.Context) *RunInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ri.TraceID = span.SpanContext().TraceID().String()
		ri.SpanID = span.SpanContext().SpanID().String()
	}
	return ri
}

// Complete marks the run as finished and calculates duration.
func (ri *RunInvocation) Complete(success bool, err error) *RunInvocation {
	ri.Duration = time.Since(ri.StartTime)
	ri.Success = success
	if err != nil {
		ri.Error = err.Error()
	}
	return ri
}

// CompleteWithError marks the run as failed with the given error.
func (ri *RunInvocation) CompleteWithError(err error) *RunInvocation {
	return ri.Complete(false, err)
}

// CompleteSuccess marks the run as successful.
func (ri *RunInvocation) CompleteSuccess() *RunInvocation {
	return ri.Complete(true, nil)
}

// LogAttrs returns slog attributes with cardinality-controlled user identity.
// For full audit logging, use LogAuditAttrs.
func (ri *RunInvocation) LogAttrs() []slog.Attr {
	return ri.attrs(slog.String("user_domain", ri.UserDomain()))
}

// LogAuditAttrs returns slog attributes including the full user email.
//
// # Security Warning
//
// This method includes PII (full email). Ensure audit logs are:
//   - Stored securely with appropriate access controls
//   - Not exposed to general monitoring dashboards
//   - Retained according to compliance requirements
func (ri *RunInvocation) LogAuditAttrs() []slog.Attr {
	attrs := ri.attrs(slog.String("user", ri.UserEmail))
	if ri.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ri.SpanID))
	}
	return attrs
}

func (ri *RunInvocation) attrs(identity slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("trigger", ri.Trigger),
		identity,
		slog.Duration("duration", ri.Duration),
		slog.Bool("success", ri.Success),
		slog.Int("total_emails", ri.TotalEmails),
		slog.Int("summarized_emails", ri.SummarizedEmails),
	}

	if ri.RunID != "" {
		attrs = append(attrs, slog.String("run_id", ri.RunID))
	}
	if ri.Source != "" {
		attrs = append(attrs, slog.String("source", ri.Source))
	}
	if ri.Days > 0 {
		attrs = append(attrs, slog.Int("days", ri.Days))
	}
	if ri.FailedEmails > 0 {
		attrs = append(attrs, slog.Int("failed_emails", ri.FailedEmails))
	}
	if ri.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ri.TraceID))
	}
	if ri.Error != "" {
		attrs = append(attrs, slog.String("error", ri.Error))
	}

	return attrs
}

// AuditLogger provides structured audit logging for report runs.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger,
		enabled: true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include full email addresses in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogRun logs a finished report run. Full user emails are only included
// when the logger is configured with IncludePII.
func (al *AuditLogger) LogRun(ri *RunInvocation) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ri.LogAuditAttrs()
	} else {
		attrs = ri.LogAttrs()
	}

	if ri.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "report_run_completed", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "report_run_failed", attrs...)
	}
}
