package gmail

import (
	"strings"
)

// Placeholders used when a header is missing.
const (
	DefaultFrom    = "Unknown"
	DefaultSubject = "No Subject"
	DefaultDate    = ""
)

// DefaultSnippetCharLimit caps the snippet length in characters.
const DefaultSnippetCharLimit = 220

// HeaderValue returns the value of the first header whose name matches
// (case-insensitively), or "" when absent.
func HeaderValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return strings.TrimSpace(h.Value)
		}
	}
	return ""
}

// Normalize builds the compact record for a message. The snippet is the
// mailbox supplied short description when present, otherwise the extracted
// body with surrounding space trimmed, and is truncated to snippetLimit
// characters.
func Normalize(msg *Message, snippetLimit, bodyLimit int) NormalizedEmail {
	headers := msg.HeaderList()

	email := NormalizedEmail{
		From:    orDefault(HeaderValue(headers, "From"), DefaultFrom),
		Subject: orDefault(HeaderValue(headers, "Subject"), DefaultSubject),
		Date:    orDefault(HeaderValue(headers, "Date"), DefaultDate),
	}

	snippet := strings.TrimSpace(msg.Snippet)
	if snippet == "" {
		snippet = strings.TrimSpace(ExtractBody(msg.Payload, bodyLimit))
	}
	email.Snippet = Truncate(snippet, snippetLimit)

	return email
}

// Truncate shortens s to at most limit characters (runes).
// A limit of zero or less returns s unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
