package digest

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ValidateResponse converts raw model output into an AnalysisResult.
// It never fails; see ParseAnalysis.
func ValidateResponse(raw string) AnalysisResult {
	result, _ := ParseAnalysis(raw)
	return result
}

// ParseAnalysis decodes raw model output field by field.
//
// If raw (after stripping markdown code fences) is not a JSON object the
// parse-failure result is returned with ok set to false. Otherwise every
// field is defaulted on its own: a non-string summary becomes
// SummaryMissing, array fields keep only their string elements, and an
// unknown sentiment becomes neutral. Unknown fields are ignored.
func ParseAnalysis(raw string) (result AnalysisResult, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &fields); err != nil || fields == nil {
		return ParseFailureAnalysis(), false
	}

	result = DefaultAnalysis()
	if s, isString := decodeString(fields["summary"]); isString {
		result.Summary = s
	}
	result.ImportantTopics = decodeStrings(fields["important_topics"])
	result.ActionItems = decodeStrings(fields["action_items"])
	result.KeyContacts = decodeStrings(fields["key_contacts"])
	if s, isString := decodeString(fields["sentiment"]); isString && Sentiment(s).Valid() {
		result.Sentiment = Sentiment(s)
	}
	return result, true
}

// decodeString accepts only a JSON string; null and other kinds are rejected.
func decodeString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeStrings returns the string elements of a JSON array, dropping the rest.
func decodeStrings(raw json.RawMessage) []string {
	out := []string{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		if s, ok := decodeString(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
