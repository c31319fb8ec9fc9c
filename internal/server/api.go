package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/pipeline"
	"github.com/teemow/inboxdigest/internal/sink"
)

// Error types of the report envelope.
const (
	ErrorTypeBadRequest             = "BadRequest"
	ErrorTypeUnauthorized           = "Unauthorized"
	ErrorTypeReportGenerationFailed = "ReportGenerationFailed"
	ErrorTypeServer                 = "Server"
)

// maxRequestBytes caps the size of a report request body.
const maxRequestBytes = 1 << 20

// ErrorDetail describes a failed report request.
type ErrorDetail struct {
	Type    string `json:"type"`
	Details string `json:"details"`
}

// ReportResponse is the envelope of every /api/generate-report answer.
// It is always sent with HTTP 200; Success tells the outcome.
type ReportResponse struct {
	Success  bool                `json:"success"`
	ReportID string              `json:"report_id,omitempty"`
	Report   *pipeline.RunReport `json:"report"`
	Error    *ErrorDetail        `json:"error"`
}

// ReportsResponse lists stored reports, newest first.
type ReportsResponse struct {
	Reports []json.RawMessage `json:"reports"`
}

// errorResponse is the body of non-envelope API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// newReportResponse builds the envelope for a pipeline outcome.
func newReportResponse(report *pipeline.RunReport, err error) ReportResponse {
	if err != nil {
		return ReportResponse{Error: &ErrorDetail{Type: classifyError(err), Details: err.Error()}}
	}
	return ReportResponse{Success: true, ReportID: report.RunID, Report: report}
}

// classifyError maps a pipeline error to an envelope error type.
func classifyError(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return ErrorTypeBadRequest
	case errors.Is(err, pipeline.ErrUnauthenticated), errors.Is(err, pipeline.ErrForbidden):
		return ErrorTypeUnauthorized
	case errors.Is(err, context.Canceled):
		return ErrorTypeServer
	default:
		return ErrorTypeReportGenerationFailed
	}
}

// decodeRequest reads a pipeline request from a JSON body.
func decodeRequest(r io.Reader) (pipeline.Request, error) {
	var req pipeline.Request
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return req, errors.Join(pipeline.ErrInvalidRequest, err)
	}
	return req, nil
}

// handleGenerateReport runs the pipeline for POST /api/generate-report.
func (s *HTTPServer) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	if s.serverContext.IsShutdown() {
		writeJSON(w, http.StatusOK, ReportResponse{Error: &ErrorDetail{Type: ErrorTypeServer, Details: "server is shutting down"}})
		return
	}

	if err := s.serverContext.Pipeline().AuthorizeRun(r.Context()); err != nil {
		writeAuthError(w, err)
		return
	}

	req, err := decodeRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusOK, newReportResponse(nil, err))
		return
	}
	req.Trigger = instrumentation.TriggerHTTP

	report, err := s.serverContext.Pipeline().Run(r.Context(), req)
	if err != nil {
		slog.Warn("report generation failed", logging.Operation("generate_report"), logging.UserHash(req.UserEmail), logging.Err(err))
	}
	writeJSON(w, http.StatusOK, newReportResponse(report, err))
}

// handleListReports serves GET /api/reports?user_email=... The caller sends
// either the API token or a Google access token of that mailbox as a bearer
// token.
func (s *HTTPServer) handleListReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("user_email"))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_email is required"})
		return
	}

	p := s.serverContext.Pipeline()
	if err := p.AuthorizeReportRead(r.Context(), email, readCredentials(r)); err != nil {
		slog.Info("report listing refused", logging.Operation("list_reports"), logging.UserHash(email), logging.Err(err))
		writeAuthError(w, err)
		return
	}

	lister, ok := p.Sink().(sink.Lister)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "report sink does not support listing"})
		return
	}

	reports, err := lister.Recent(r.Context(), logging.HashEmail(email), sink.DefaultRecentLimit)
	if err != nil {
		slog.Error("failed to list reports", logging.Operation("list_reports"), logging.UserHash(email), logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list reports"})
		return
	}
	if reports == nil {
		reports = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, ReportsResponse{Reports: reports})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
