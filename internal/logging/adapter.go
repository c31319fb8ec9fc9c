package logging

import "log/slog"

// Logger is the leveled key/value logger the pipeline depends on.
// *slog.Logger satisfies it directly; SlogAdapter additionally exposes the
// wrapped logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ Logger = (*slog.Logger)(nil)

// SlogAdapter wraps an *slog.Logger as a Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter wraps logger, or slog.Default() when logger is nil.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{Logger: logger}
}

// Slog returns the wrapped logger.
func (a *SlogAdapter) Slog() *slog.Logger {
	return a.Logger
}

// DefaultLogger wraps the process-wide default logger.
func DefaultLogger() *SlogAdapter {
	return NewSlogAdapter(nil)
}
