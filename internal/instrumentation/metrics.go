package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrSource    = "source"
	attrSink      = "sink"
	attrProvider  = "provider"
	attrTrigger   = "trigger"
	attrDomain    = "user_domain"
)

// Metrics records pipeline and transport metrics. The zero value and a nil
// *Metrics are no-ops.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	runsTotal        metric.Int64Counter
	runDuration      metric.Float64Histogram
	emailFetchTotal  metric.Int64Counter
	emailsSelected   metric.Int64Histogram
	promptTokens     metric.Int64Histogram
	modelRequests    metric.Int64Counter
	modelDuration    metric.Float64Histogram
	modelFallbacks   metric.Int64Counter
	sinkWritesTotal  metric.Int64Counter
	sinkWriteLatency metric.Float64Histogram

	detailedLabels bool
}

// instrumentBuilder creates instruments on one meter and keeps the first
// error so NewMetrics can check once at the end.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) sizes(name, desc, unit string, buckets ...float64) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(buckets...))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

// NewMetrics creates every instrument on meter. With detailedLabels the
// user's email domain is added to run metrics.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	b := &instrumentBuilder{meter: meter}
	m := &Metrics{
		detailedLabels: detailedLabels,

		httpRequestsTotal: b.counter("http_requests_total", "Total number of HTTP requests", "{request}"),
		httpRequestDuration: b.seconds("http_request_duration_seconds", "HTTP request duration in seconds",
			0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),

		googleAPIOperationsTotal: b.counter("google_api_operations_total", "Total number of Google API operations", "{operation}"),
		googleAPIOperationDuration: b.seconds("google_api_operation_duration_seconds", "Google API operation duration in seconds",
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),

		runsTotal: b.counter("pipeline_runs_total", "Total number of report pipeline runs", "{run}"),
		runDuration: b.seconds("pipeline_run_duration_seconds", "Report pipeline run duration in seconds",
			0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),

		emailFetchTotal: b.counter("email_fetch_total", "Per-message fetches by source and status", "{message}"),
		emailsSelected: b.sizes("emails_selected", "Number of emails selected into a prompt", "{message}",
			0, 1, 5, 10, 20, 30, 40, 60, 100),
		promptTokens: b.sizes("prompt_approx_tokens", "Approximate token size of the selected prompt content", "{token}",
			0, 500, 1000, 2000, 4000, 6000, 8000, 16000),

		modelRequests: b.counter("model_requests_total", "Total number of text-analysis model requests", "{request}"),
		modelDuration: b.seconds("model_request_duration_seconds", "Text-analysis model request duration in seconds",
			0.5, 1, 2.5, 5, 10, 20, 30, 60, 120),
		modelFallbacks: b.counter("model_response_fallbacks_total", "Model responses replaced by defaults", "{response}"),

		sinkWritesTotal: b.counter("sink_writes_total", "Report writes by sink and status", "{write}"),
		sinkWriteLatency: b.seconds("sink_write_duration_seconds", "Report write duration in seconds",
			0.001, 0.01, 0.05, 0.1, 0.5, 1, 5),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records one Google API call.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRun records a finished pipeline run. Of userEmail only the domain
// is recorded, and only with detailed labels.
func (m *Metrics) RecordRun(ctx context.Context, trigger, status, userEmail string, duration time.Duration) {
	if m == nil || m.runsTotal == nil || m.runDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTrigger, trigger),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels && userEmail != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(userEmail)))
	}

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEmailFetches records per-message fetch outcomes for one run.
func (m *Metrics) RecordEmailFetches(ctx context.Context, source string, succeeded, failed int) {
	if m == nil || m.emailFetchTotal == nil {
		return
	}

	if succeeded > 0 {
		m.emailFetchTotal.Add(ctx, int64(succeeded), metric.WithAttributes(
			attribute.String(attrSource, source),
			attribute.String(attrStatus, StatusSuccess),
		))
	}
	if failed > 0 {
		m.emailFetchTotal.Add(ctx, int64(failed), metric.WithAttributes(
			attribute.String(attrSource, source),
			attribute.String(attrStatus, StatusError),
		))
	}
}

// RecordSelection records how many emails and approximate tokens went into a prompt.
func (m *Metrics) RecordSelection(ctx context.Context, selected, approxTokens int) {
	if m == nil || m.emailsSelected == nil || m.promptTokens == nil {
		return
	}

	m.emailsSelected.Record(ctx, int64(selected))
	m.promptTokens.Record(ctx, int64(approxTokens))
}

// RecordModelRequest records a text-analysis model call.
func (m *Metrics) RecordModelRequest(ctx context.Context, provider, status string, duration time.Duration) {
	if m == nil || m.modelRequests == nil || m.modelDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrStatus, status),
	}

	m.modelRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.modelDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordModelFallback counts a model response replaced by defaults.
func (m *Metrics) RecordModelFallback(ctx context.Context, provider string) {
	if m == nil || m.modelFallbacks == nil {
		return
	}

	m.modelFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String(attrProvider, provider)))
}

// RecordSinkWrite records a report write.
func (m *Metrics) RecordSinkWrite(ctx context.Context, sink, status string, duration time.Duration) {
	if m == nil || m.sinkWritesTotal == nil || m.sinkWriteLatency == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrSink, sink),
		attribute.String(attrStatus, status),
	}

	m.sinkWritesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.sinkWriteLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
