// Package llm provides text-analysis model clients used to turn a digest
// prompt into a JSON analysis.
//
// Two providers are supported: the Anthropic Messages API and the OpenAI
// chat completions API (or any server compatible with it, selected through
// LLM_BASE_URL). Both are called with temperature 0 and return the raw text
// of the first completion; validation of that text happens elsewhere.
package llm
