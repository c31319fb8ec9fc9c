package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Attribute keys shared by every log line of the service.
const (
	KeyOperation = "operation"
	KeyService   = "service"
	KeyUserHash  = "user_hash"
	KeyDomain    = "user_domain"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyRunID     = "run_id"
	KeyMessageID = "message_id"
	KeySource    = "source"
	KeySink      = "sink"
)

// Log output formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogger builds a logger writing text or JSON records to w.
func NewLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q, must be one of: %s, %s", format, FormatText, FormatJSON)
}

// WithOperation scopes logger to a command or request kind.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(Operation(operation))
}

// WithRunID scopes logger to one pipeline run.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With(RunID(runID))
}

// WithService scopes logger to a component.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

func Operation(op string) slog.Attr   { return slog.String(KeyOperation, op) }
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func MessageID(id string) slog.Attr   { return slog.String(KeyMessageID, id) }
func Source(source string) slog.Attr  { return slog.String(KeySource, source) }
func Sink(sink string) slog.Attr      { return slog.String(KeySink, sink) }
func Status(status string) slog.Attr  { return slog.String(KeyStatus, status) }
func Domain(email string) slog.Attr   { return slog.String(KeyDomain, ExtractDomain(email)) }
func UserHash(email string) slog.Attr { return slog.String(KeyUserHash, AnonymizeEmail(email)) }

// Err returns the error attribute. For a nil err it returns an empty group,
// which handlers drop, so Err(err) is safe on success paths too.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// HashEmail returns the first 8 bytes of the SHA-256 of the trimmed,
// lower-cased address as hex. Report keys use it as the per-user segment.
func HashEmail(email string) string {
	if email == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:8])
}

// AnonymizeEmail returns "user:<hash>", the only form in which users appear
// in logs and reports.
func AnonymizeEmail(email string) string {
	if email == "" {
		return ""
	}
	return "user:" + HashEmail(email)
}

// SanitizeToken describes a secret by its length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain returns the part after the single "@", or "".
func ExtractDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}
