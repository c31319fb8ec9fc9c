// Package instrumentation wires OpenTelemetry into the report pipeline:
// a Provider that owns the meter and tracer providers, a Metrics recorder
// with nil-safe Record methods, span helpers and the per-run audit log.
//
// Metrics, labelled by low-cardinality values only:
//
//	pipeline_runs_total, pipeline_run_duration_seconds   trigger, status[, user_domain]
//	email_fetch_total                                     source, status
//	emails_selected, prompt_approx_tokens                 -
//	model_requests_total, model_request_duration_seconds provider, status
//	model_response_fallbacks_total                        provider
//	sink_writes_total, sink_write_duration_seconds        sink, status
//	google_api_operations_total                           service, operation, status
//	http_requests_total, http_request_duration_seconds    method, path, status
//
// user_domain is only added with METRICS_DETAILED_LABELS=true.
//
// Spans: pipeline.run is the root of a run; google.gmail.list,
// google.gmail.get, model.analyze, sink.put and mcp.tool are its children.
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER
// (prometheus, otlp, stdout), TRACING_EXPORTER (otlp, stdout, none),
// OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE,
// OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME and the AUDIT_LOGGING_* switches.
package instrumentation
