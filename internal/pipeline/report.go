package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/inboxdigest/internal/digest"
	"github.com/teemow/inboxdigest/internal/google"
)

var (
	// ErrInvalidRequest marks caller errors: a missing user or missing credentials.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAllFetchesFailed is returned when messages were listed but none could be fetched.
	ErrAllFetchesFailed = errors.New("all message fetches failed")
)

// Request starts a run.
type Request struct {
	UserEmail   string              `json:"user_email"`
	Credentials *google.Credentials `json:"credentials,omitempty"`
	// Days is the reporting window. Zero or less means DefaultDays.
	Days int `json:"days,omitempty"`

	// Trigger records what started the run (cli, http, websocket, mcp).
	Trigger string `json:"-"`
}

// normalize validates the request and applies defaults.
func (r Request) normalize() (Request, error) {
	r.UserEmail = strings.TrimSpace(r.UserEmail)
	if r.UserEmail == "" {
		return r, fmt.Errorf("%w: user_email is required", ErrInvalidRequest)
	}
	if r.Days <= 0 {
		r.Days = DefaultDays
	}
	return r, nil
}

// RunReport is the stored and returned result of a run. The analysis fields
// appear inline in its JSON form.
type RunReport struct {
	digest.AnalysisResult

	TotalEmails      int    `json:"total_emails"`
	SummarizedEmails int    `json:"summarized_emails"`
	Period           string `json:"period"`
	PeriodDays       int    `json:"period_days"`
	FetchedEmails    int    `json:"fetched_emails"`
	FailedEmails     int    `json:"failed_emails"`
	ApproxTokens     int    `json:"approx_tokens"`
	RunID            string `json:"run_id"`
	GeneratedAt      string `json:"generated_at"`
	UserHash         string `json:"user_hash"`
	Source           string `json:"source"`
	StorageKey       string `json:"storage_key,omitempty"`
}

// PeriodLabel renders the human period label, e.g. "last 7 days".
func PeriodLabel(days int) string {
	return fmt.Sprintf("last %d days", days)
}
