package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer all inboxdigest spans come from.
const TracerName = "github.com/teemow/inboxdigest"

// Span attribute keys.
const (
	SpanAttrRunID        = "digest.run_id"
	SpanAttrSource       = "digest.source"
	SpanAttrDays         = "digest.days"
	SpanAttrResourceID   = "digest.resource_id"
	SpanAttrResourceType = "digest.resource_type"

	SpanAttrService   = "google.service"
	SpanAttrOperation = "google.operation"

	SpanAttrProvider = "model.provider"
	SpanAttrModel    = "model.name"

	SpanAttrSink = "sink.kind"
)

// SpanAttributeBuilder collects span attributes, skipping empty values.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder returns an empty builder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{}
}

func (b *SpanAttributeBuilder) str(key, value string) *SpanAttributeBuilder {
	if value != "" {
		b.attrs = append(b.attrs, attribute.String(key, value))
	}
	return b
}

// WithRunID adds the pipeline run ID.
func (b *SpanAttributeBuilder) WithRunID(runID string) *SpanAttributeBuilder {
	return b.str(SpanAttrRunID, runID)
}

// WithSource adds the mailbox source kind.
func (b *SpanAttributeBuilder) WithSource(source string) *SpanAttributeBuilder {
	return b.str(SpanAttrSource, source)
}

// WithDays adds the look-back window in days.
func (b *SpanAttributeBuilder) WithDays(days int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrDays, days))
	return b
}

// WithResource adds the type and ID of the object the span works on,
// e.g. ("email", messageID) or ("report", key).
func (b *SpanAttributeBuilder) WithResource(resourceType, resourceID string) *SpanAttributeBuilder {
	return b.str(SpanAttrResourceType, resourceType).str(SpanAttrResourceID, resourceID)
}

// Build returns the collected attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartSpan starts an internal span. Callers end it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan starts the root span of a pipeline run.
func StartRunSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer().Start(ctx, "pipeline.run",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal))
}

// StartModelSpan starts a client span around one model request.
func StartModelSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "model.analyze",
		trace.WithAttributes(
			attribute.String(SpanAttrProvider, provider),
			attribute.String(SpanAttrModel, model)),
		trace.WithSpanKind(trace.SpanKindClient))
}

// StartSinkSpan starts a client span around one report write.
func StartSinkSpan(ctx context.Context, sink, key string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "sink.put",
		trace.WithAttributes(append(
			[]attribute.KeyValue{attribute.String(SpanAttrSink, sink)},
			NewSpanAttributeBuilder().WithResource("report", key).Build()...)...),
		trace.WithSpanKind(trace.SpanKindClient))
}

// StartGoogleAPISpan starts a client span named google.<service>.<operation>.
func StartGoogleAPISpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	}, attrs...)
	return tracer().Start(ctx, "google."+service+"."+operation,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient))
}

// SetSpanError records err on span and marks it failed. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks span as OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
