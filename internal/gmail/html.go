package gmail

import (
	"regexp"
	"strings"
)

var (
	styleElementRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	scriptElementRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	blockTagRe      = regexp.MustCompile(`(?i)<\s*/?\s*(?:p|div|br|li|h[1-6])\b[^>]*>`)
	anyTagRe        = regexp.MustCompile(`<[^>]*>`)
	blankLinesRe    = regexp.MustCompile(`\n{3,}`)

	// Only these two entities are decoded.
	entityReplacer = strings.NewReplacer("&nbsp;", " ", "&amp;", "&")
)

// ReduceHTML converts HTML markup into plain text.
//
// The steps run in a fixed order: style and script elements are removed with
// their content, block-ending tags (p, div, br, li, h1-h6) become newlines,
// all other tags are stripped, &nbsp; and &amp; are decoded, runs of three or
// more newlines collapse to two and the result is trimmed. Tag matching is
// case-insensitive. Malformed markup is stripped rather than rejected.
//
// Entities are decoded in a single pass. An escaped entity such as
// "&amp;nbsp;" yields "&nbsp;", which a second call would decode again, so
// ReduceHTML is only idempotent on text without such sequences.
func ReduceHTML(html string) string {
	text := styleElementRe.ReplaceAllString(html, "")
	text = scriptElementRe.ReplaceAllString(text, "")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = anyTagRe.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
