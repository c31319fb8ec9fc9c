package digest

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"github.com/teemow/inboxdigest/internal/gmail"
)

// Budget bounds what goes into a prompt.
type Budget struct {
	MaxCount        int
	MaxApproxTokens int
}

// Selection is the ordered outcome of Select.
type Selection struct {
	Emails       []gmail.NormalizedEmail
	ApproxTokens int
}

// EstimateTokens approximates the token count of s as ceil(chars/4).
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Select orders emails by descending snippet length (ties keep input order)
// and takes them greedily. It stops at the first email that would exceed
// either the count cap or the token budget; later, smaller emails are not
// considered. Each email is sized by the prompt block it will occupy.
func Select(emails []gmail.NormalizedEmail, budget Budget) Selection {
	type candidate struct {
		email gmail.NormalizedEmail
		size  int
	}
	sorted := make([]candidate, len(emails))
	for i, e := range emails {
		sorted[i] = candidate{email: e, size: utf8.RuneCountInString(e.Snippet)}
	}
	slices.SortStableFunc(sorted, func(a, b candidate) int {
		return cmp.Compare(b.size, a.size)
	})

	sel := Selection{Emails: []gmail.NormalizedEmail{}}
	for _, c := range sorted {
		if len(sel.Emails) >= budget.MaxCount {
			break
		}
		tokens := EstimateTokens(FormatEmailBlock(len(sel.Emails)+1, c.email))
		if sel.ApproxTokens+tokens > budget.MaxApproxTokens {
			break
		}
		sel.Emails = append(sel.Emails, c.email)
		sel.ApproxTokens += tokens
	}
	return sel
}
