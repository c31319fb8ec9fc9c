package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Sink kinds, as accepted by the --sink flag.
const (
	KindFile   = "file"
	KindValkey = "valkey"
	KindS3     = "s3"
	KindNone   = "none"
)

// DefaultRecentLimit is how many reports a recent-report listing returns.
const DefaultRecentLimit = 10

// Sink stores a JSON-serializable payload under a key.
type Sink interface {
	Put(ctx context.Context, key string, payload any) error
}

// Lister is implemented by sinks that can return a user's most recent
// reports, newest first.
type Lister interface {
	Recent(ctx context.Context, userHash string, n int) ([]json.RawMessage, error)
}

// Named is implemented by sinks that report their kind for logs and metrics.
type Named interface {
	Name() string
}

// ErrNoReports is returned by Latest when a user has no stored reports.
var ErrNoReports = errors.New("no reports stored")

// ErrListingUnsupported is returned when a sink cannot list reports.
var ErrListingUnsupported = errors.New("report sink does not support listing reports")

// Latest returns the newest stored report of a user.
func Latest(ctx context.Context, s Sink, userHash string) (json.RawMessage, error) {
	lister, ok := s.(Lister)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingUnsupported, NameOf(s))
	}
	reports, err := lister.Recent(ctx, userHash, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNoReports
	}
	return reports[0], nil
}

// NameOf returns the kind of s, or "unknown".
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "unknown"
}

// ReportKey builds the storage key of a report.
func ReportKey(userHash, runID string, generatedAt time.Time) string {
	return path.Join("reports", userHash, generatedAt.UTC().Format(time.DateOnly), runID+".json")
}

// userPrefix is the key prefix holding all reports of a user.
func userPrefix(userHash string) string {
	return "reports/" + userHash + "/"
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid report key %q", key)
	}
	return nil
}

func validateUserHash(userHash string) error {
	if userHash == "" || strings.ContainsAny(userHash, "/\\.") {
		return fmt.Errorf("invalid user hash %q", userHash)
	}
	return nil
}

func marshal(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return data, nil
}

// Discard drops every report.
type Discard struct{}

// Put implements Sink.
func (Discard) Put(context.Context, string, any) error { return nil }

// Name implements Named.
func (Discard) Name() string { return KindNone }
