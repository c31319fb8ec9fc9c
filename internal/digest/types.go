package digest

// Sentiment is the overall tone of the analyzed period.
type Sentiment string

// Allowed sentiment values.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Valid reports whether s is one of the allowed values.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Summary placeholders.
const (
	SummaryParseFailure = "Unable to parse model response."
	SummaryMissing      = "No summary available."
)

// AnalysisResult is the sanitized analysis of a period of email.
// Array fields are never nil.
type AnalysisResult struct {
	Summary         string    `json:"summary"`
	ImportantTopics []string  `json:"important_topics"`
	ActionItems     []string  `json:"action_items"`
	KeyContacts     []string  `json:"key_contacts"`
	Sentiment       Sentiment `json:"sentiment"`
}

// DefaultAnalysis is the result of a run that had nothing to analyze.
func DefaultAnalysis() AnalysisResult {
	return newResult(SummaryMissing)
}

// ParseFailureAnalysis is the result when the model output is not a JSON object.
func ParseFailureAnalysis() AnalysisResult {
	return newResult(SummaryParseFailure)
}

func newResult(summary string) AnalysisResult {
	return AnalysisResult{
		Summary:         summary,
		ImportantTopics: []string{},
		ActionItems:     []string{},
		KeyContacts:     []string{},
		Sentiment:       SentimentNeutral,
	}
}
