package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/gmail"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/sink"
)

// Analyzer is the text-analysis model.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
}

// Pipeline runs digests. It is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	sources  SourceFactory
	analyzer Analyzer
	sink     sink.Sink

	logger  logging.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	now     func() time.Time
	newID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is logging.DefaultLogger().
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records run metrics on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithAuditLogger writes one audit record per run.
func WithAuditLogger(a *instrumentation.AuditLogger) Option {
	return func(p *Pipeline) {
		p.audit = a
	}
}

// New creates a Pipeline.
func New(cfg Config, sources SourceFactory, analyzer Analyzer, s sink.Sink, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if sources == nil {
		return nil, errors.New("source factory is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if s == nil {
		s = sink.Discard{}
	}

	p := &Pipeline{
		cfg:      cfg,
		sources:  sources,
		analyzer: analyzer,
		sink:     s,
		logger:   logging.DefaultLogger(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Sink returns the report sink.
func (p *Pipeline) Sink() sink.Sink {
	return p.sink
}

// Run executes one digest.
func (p *Pipeline) Run(ctx context.Context, req Request) (*RunReport, error) {
	return p.RunWithProgress(ctx, req, nil)
}

// RunWithProgress executes one digest, reporting stage changes to fn.
func (p *Pipeline) RunWithProgress(ctx context.Context, req Request, fn ProgressFunc) (*RunReport, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}

	runID := p.newID()
	kind := p.sources.Kind()

	ctx, span := instrumentation.StartRunSpan(ctx, instrumentation.NewSpanAttributeBuilder().
		WithRunID(runID).
		WithSource(kind).
		WithDays(req.Days).
		Build()...)
	defer span.End()

	inv := instrumentation.NewRunInvocation(req.Trigger).
		WithRunID(runID).
		WithUser(req.UserEmail).
		WithSource(kind, req.Days).
		WithSpanContext(ctx)

	report, err := p.run(ctx, req, runID, kind, &progress{fn: fn, runID: runID})

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		inv.CompleteWithError(err)
		p.logger.Error("report run failed", logging.RunID(runID), logging.UserHash(req.UserEmail), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
		inv.WithCounts(report.TotalEmails, report.FailedEmails, report.SummarizedEmails).CompleteSuccess()
		p.logger.Info("report run completed",
			logging.RunID(runID),
			logging.UserHash(req.UserEmail),
			logging.Domain(req.UserEmail),
			logging.Source(kind),
			"total_emails", report.TotalEmails,
			"summarized_emails", report.SummarizedEmails,
			"failed_emails", report.FailedEmails)
	}
	p.metrics.RecordRun(ctx, req.Trigger, status, req.UserEmail, inv.Duration)
	p.audit.LogRun(inv)

	return report, err
}

func (p *Pipeline) run(ctx context.Context, req Request, runID, kind string, prog *progress) (*RunReport, error) {
	src, err := p.sources.Open(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open %s source: %w", kind, err)
	}

	// Reports are keyed by the provider's address, never by an unchecked
	// request field.
	req.UserEmail, err = mailboxOwner(ctx, src, req.UserEmail)
	if err != nil {
		return nil, err
	}

	prog.emit(StageListing, 0, 0)
	ids, err := src.ListMessageIDs(ctx, gmail.Query{
		Days:              req.Days,
		MaxResults:        p.cfg.MaxResults,
		ExcludeCategories: p.cfg.ExcludeCategories,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	prog.emit(StageFetching, 0, len(ids))
	results := p.fetchAll(ctx, src, ids, runID, prog)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emails := make([]gmail.NormalizedEmail, 0, len(results))
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		emails = append(emails, r.Email)
	}
	failed := len(results) - len(emails)
	p.metrics.RecordEmailFetches(ctx, kind, len(emails), failed)

	if len(ids) > 0 && len(emails) == 0 {
		return nil, fmt.Errorf("%w (%d messages): %w", ErrAllFetchesFailed, len(ids), firstErr)
	}

	prog.emit(StageSelecting, 0, 0)
	sel := digest.Select(emails, digest.Budget{
		MaxCount:        p.cfg.MaxEmailsForModel,
		MaxApproxTokens: p.cfg.MaxApproxTokenBudget,
	})
	p.metrics.RecordSelection(ctx, len(sel.Emails), sel.ApproxTokens)
	p.logger.Debug("selected emails for analysis",
		logging.RunID(runID),
		"fetched", len(emails),
		"selected", len(sel.Emails),
		"approx_tokens", sel.ApproxTokens)

	analysis := digest.DefaultAnalysis()
	if len(sel.Emails) > 0 {
		prog.emit(StageAnalyzing, 0, 0)
		analysis, err = p.analyze(ctx, runID, digest.BuildPrompt(sel.Emails, req.Days))
		if err != nil {
			return nil, err
		}
	}

	generatedAt := p.now().UTC()
	report := &RunReport{
		AnalysisResult:   analysis,
		TotalEmails:      len(ids),
		SummarizedEmails: len(sel.Emails),
		Period:           PeriodLabel(req.Days),
		PeriodDays:       req.Days,
		FetchedEmails:    len(emails),
		FailedEmails:     failed,
		ApproxTokens:     sel.ApproxTokens,
		RunID:            runID,
		GeneratedAt:      generatedAt.Format(time.RFC3339),
		UserHash:         logging.AnonymizeEmail(req.UserEmail),
		Source:           kind,
		StorageKey:       sink.ReportKey(logging.HashEmail(req.UserEmail), runID, generatedAt),
	}

	prog.emit(StageStoring, 0, 0)
	if err := p.store(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// FetchResult is the outcome of fetching one message.
type FetchResult struct {
	ID    string
	Email gmail.NormalizedEmail
	Err   error
}

// fetchAll fetches every listed message on a bounded pool. Workers only
// write their own slot, so results keep list order.
func (p *Pipeline) fetchAll(ctx context.Context, src Source, ids []string, runID string, prog *progress) []FetchResult {
	results := make([]FetchResult, len(ids))
	if len(ids) == 0 {
		return results
	}

	limit := rate.Inf
	if p.cfg.FetchRPS > 0 {
		limit = rate.Limit(p.cfg.FetchRPS)
	}
	limiter := rate.NewLimiter(limit, p.cfg.FetchConcurrency)

	var g errgroup.Group
	g.SetLimit(p.cfg.FetchConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			results[i] = p.fetchOne(ctx, src, limiter, id)
			if results[i].Err != nil {
				p.logger.Warn("message fetch failed",
					logging.RunID(runID),
					logging.MessageID(id),
					logging.Err(results[i].Err))
			}
			prog.fetchDone(len(ids))
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *Pipeline) fetchOne(ctx context.Context, src Source, limiter *rate.Limiter, id string) FetchResult {
	if err := limiter.Wait(ctx); err != nil {
		return FetchResult{ID: id, Err: err}
	}

	msg, err := src.GetMessage(ctx, id)
	if err != nil {
		return FetchResult{ID: id, Err: err}
	}
	if msg == nil {
		return FetchResult{ID: id, Err: fmt.Errorf("message %s: empty response", id)}
	}

	return FetchResult{
		ID:    id,
		Email: gmail.Normalize(msg, p.cfg.PerEmailSnippetLimit, p.cfg.BodyCharLimit),
	}
}

func (p *Pipeline) analyze(ctx context.Context, runID, prompt string) (digest.AnalysisResult, error) {
	provider, model := describeAnalyzer(p.analyzer)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ModelTimeout)
	defer cancel()

	ctx, span := instrumentation.StartModelSpan(ctx, provider, model)
	defer span.End()

	start := time.Now()
	raw, err := p.analyzer.Analyze(ctx, prompt)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		p.metrics.RecordModelRequest(ctx, provider, instrumentation.StatusError, time.Since(start))
		return digest.AnalysisResult{}, fmt.Errorf("failed to analyze emails: %w", err)
	}
	instrumentation.SetSpanSuccess(span)
	p.metrics.RecordModelRequest(ctx, provider, instrumentation.StatusSuccess, time.Since(start))

	result, ok := digest.ParseAnalysis(raw)
	if !ok {
		p.metrics.RecordModelFallback(ctx, provider)
		p.logger.Warn("model response was not a JSON object, using defaults",
			logging.RunID(runID),
			"provider", provider,
			"response_chars", len(raw))
	}
	return result, nil
}

func (p *Pipeline) store(ctx context.Context, report *RunReport) error {
	name := sink.NameOf(p.sink)

	ctx, span := instrumentation.StartSinkSpan(ctx, name, report.StorageKey)
	defer span.End()

	start := time.Now()
	if err := p.sink.Put(ctx, report.StorageKey, report); err != nil {
		instrumentation.SetSpanError(span, err)
		p.metrics.RecordSinkWrite(ctx, name, instrumentation.StatusError, time.Since(start))
		return fmt.Errorf("failed to store report: %w", err)
	}
	instrumentation.SetSpanSuccess(span)
	p.metrics.RecordSinkWrite(ctx, name, instrumentation.StatusSuccess, time.Since(start))
	p.logger.Debug("report stored", logging.RunID(report.RunID), logging.Sink(name), "key", report.StorageKey)
	return nil
}

// describeAnalyzer returns provider and model names when the analyzer
// exposes them.
func describeAnalyzer(a Analyzer) (provider, model string) {
	provider, model = "unknown", "unknown"
	if v, ok := a.(interface{ Provider() string }); ok {
		provider = v.Provider()
	}
	if v, ok := a.(interface{ Model() string }); ok {
		model = v.Model()
	}
	return provider, model
}

// SourceKind names the mail source the pipeline reads from.
func (p *Pipeline) SourceKind() string {
	return p.sources.Kind()
}

// Model returns the provider and model name of the analyzer, "unknown"
// where the analyzer does not expose them.
func (p *Pipeline) Model() (provider, model string) {
	return describeAnalyzer(p.analyzer)
}
