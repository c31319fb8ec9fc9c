package gmail

import (
	"fmt"
	"strings"
	"time"
)

// MimePayload is one node of a message's MIME tree.
type MimePayload struct {
	MimeType string
	Filename string
	Headers  []Header
	Body     *MessageBody
	Parts    []*MimePayload
}

// MessageBody holds the inline content of a MIME node.
type MessageBody struct {
	// Data is base64 encoded, URL-safe or standard alphabet.
	Data string
	Size int64
}

// HasData reports whether the node carries inline body data.
func (p *MimePayload) HasData() bool {
	return p != nil && p.Body != nil && p.Body.Data != ""
}

// MediaType returns the lowercased media type without parameters.
func (p *MimePayload) MediaType() string {
	if p == nil {
		return ""
	}
	return mediaType(p.MimeType)
}

// Header is a single message header.
type Header struct {
	Name  string
	Value string
}

// Message is a fetched mailbox message.
type Message struct {
	ID       string
	ThreadID string
	// Snippet is the short description supplied by the mailbox, may be empty.
	Snippet      string
	Headers      []Header
	Payload      *MimePayload
	InternalDate time.Time
}

// HeaderList returns the message level headers, falling back to the
// headers of the root payload.
func (m *Message) HeaderList() []Header {
	if m == nil {
		return nil
	}
	if len(m.Headers) > 0 {
		return m.Headers
	}
	if m.Payload != nil {
		return m.Payload.Headers
	}
	return nil
}

// NormalizedEmail is the compact per-message record fed to the digest.
type NormalizedEmail struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
}

// DefaultExcludedCategories are the Gmail categories left out of a digest.
var DefaultExcludedCategories = []string{"promotions", "social"}

// Query selects the messages of a reporting window.
type Query struct {
	// Days is the window length, counted back from now.
	Days int
	// MaxResults caps the number of IDs returned. Zero means no cap.
	MaxResults int
	// ExcludeCategories lists Gmail categories to leave out.
	ExcludeCategories []string
}

// String renders the query in Gmail search syntax, e.g.
// "newer_than:7d -category:promotions -category:social".
func (q Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "newer_than:%dd", q.Days)
	for _, c := range q.ExcludeCategories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		b.WriteString(" -category:")
		b.WriteString(c)
	}
	return b.String()
}

// Since returns the start of the window relative to now.
func (q Query) Since(now time.Time) time.Time {
	return now.Add(-time.Duration(q.Days) * 24 * time.Hour)
}

// mediaType lowercases a Content-Type value and drops its parameters.
func mediaType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
