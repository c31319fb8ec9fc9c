// Package digest turns normalized emails into a model prompt and turns the
// model's answer back into a typed AnalysisResult.
//
// Select packs emails greedily, longest snippet first, under a count cap and
// an approximate token budget. BuildPrompt serializes the selection
// deterministically. ValidateResponse is total: any input string, however
// malformed, maps to a well-formed AnalysisResult.
package digest
