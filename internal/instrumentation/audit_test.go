package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testEmail   = "jane@example.com"
	testDomain  = "example.com"
	testRunID   = "6f1c0d5e-run"
	testTraceID = "abc123def456"
	testSpanID  = "span789"
)

func attrMap(attrs []slog.Attr) map[string]slog.Value {
	m := make(map[string]slog.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func TestRunInvocation_NewAndComplete(t *testing.T) {
	ri := NewRunInvocation(TriggerCLI)

	if ri.Trigger != TriggerCLI {
		t.Errorf("Trigger = %q, want %q", ri.Trigger, TriggerCLI)
	}
	if ri.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ri.CompleteSuccess()

	if !ri.Success {
		t.Error("Success should be true")
	}
	if ri.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ri.Error != "" {
		t.Errorf("Error should be empty, got %q", ri.Error)
	}
	if ri.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ri.Status(), StatusSuccess)
	}
}

func TestRunInvocation_CompleteWithError(t *testing.T) {
	ri := NewRunInvocation(TriggerHTTP)

	ri.CompleteWithError(errors.New("model unavailable"))

	if ri.Success {
		t.Error("Success should be false")
	}
	if ri.Error != "model unavailable" {
		t.Errorf("Error = %q, want %q", ri.Error, "model unavailable")
	}
	if ri.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", ri.Status(), StatusError)
	}
}

func TestRunInvocation_LogAttrs(t *testing.T) {
	ri := NewRunInvocation(TriggerMCP).
		WithRunID(testRunID).
		WithUser(testEmail).
		WithSource("gmail", 7).
		WithCounts(12, 2, 10)
	ri.TraceID = testTraceID
	ri.SpanID = testSpanID
	ri.CompleteSuccess()

	attrs := attrMap(ri.LogAttrs())

	if got := attrs["user_domain"].String(); got != testDomain {
		t.Errorf("user_domain = %q, want %q", got, testDomain)
	}
	if _, ok := attrs["user"]; ok {
		t.Error("LogAttrs should not include the full user email")
	}
	if _, ok := attrs["span_id"]; ok {
		t.Error("LogAttrs should not include span_id")
	}
	if got := attrs["run_id"].String(); got != testRunID {
		t.Errorf("run_id = %q, want %q", got, testRunID)
	}
	if got := attrs["failed_emails"].Int64(); got != 2 {
		t.Errorf("failed_emails = %d, want 2", got)
	}
	if got := attrs["summarized_emails"].Int64(); got != 10 {
		t.Errorf("summarized_emails = %d, want 10", got)
	}
	if got := attrs["trace_id"].String(); got != testTraceID {
		t.Errorf("trace_id = %q, want %q", got, testTraceID)
	}
}

func TestRunInvocation_LogAuditAttrs(t *testing.T) {
	ri := NewRunInvocation(TriggerCLI).WithUser(testEmail)
	ri.SpanID = testSpanID
	ri.CompleteWithError(errors.New("boom"))

	attrs := attrMap(ri.LogAuditAttrs())

	if got := attrs["user"].String(); got != testEmail {
		t.Errorf("user = %q, want %q", got, testEmail)
	}
	if got := attrs["span_id"].String(); got != testSpanID {
		t.Errorf("span_id = %q, want %q", got, testSpanID)
	}
	if got := attrs["error"].String(); got != "boom" {
		t.Errorf("error = %q, want %q", got, "boom")
	}
}

func TestRunInvocation_LogAttrs_MinimalFields(t *testing.T) {
	ri := NewRunInvocation(TriggerCLI).CompleteSuccess()

	attrs := attrMap(ri.LogAttrs())

	for _, key := range []string{"run_id", "source", "days", "failed_emails", "trace_id", "error"} {
		if _, ok := attrs[key]; ok {
			t.Errorf("unexpected attribute %q in minimal invocation", key)
		}
	}
	if got := attrs["user_domain"].String(); got != "unknown" {
		t.Errorf("user_domain = %q, want %q", got, "unknown")
	}
}

func TestRunInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ri := NewRunInvocation(TriggerCLI).WithSpanContext(context.Background())

	if ri.TraceID != "" || ri.SpanID != "" {
		t.Errorf("expected empty trace context, got trace=%q span=%q", ri.TraceID, ri.SpanID)
	}
}

func TestAuditLogger_LogRun(t *testing.T) {
	tests := []struct {
		name       string
		includePII bool
		success    bool
		wantMsg    string
		wantUser   bool
	}{
		{name: "success without PII", success: true, wantMsg: "report_run_completed"},
		{name: "failure without PII", success: false, wantMsg: "report_run_failed"},
		{name: "success with PII", includePII: true, success: true, wantMsg: "report_run_completed", wantUser: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: tt.includePII})

			ri := NewRunInvocation(TriggerHTTP).WithUser(testEmail)
			if tt.success {
				ri.CompleteSuccess()
			} else {
				ri.CompleteWithError(errors.New("failed"))
			}
			al.LogRun(ri)

			out := buf.String()
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("log output %q does not contain %q", out, tt.wantMsg)
			}
			if got := strings.Contains(out, testEmail); got != tt.wantUser {
				t.Errorf("log output contains full email = %v, want %v", got, tt.wantUser)
			}
		})
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	al.SetEnabled(false)

	al.LogRun(NewRunInvocation(TriggerCLI).CompleteSuccess())

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}
