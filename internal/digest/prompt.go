package digest

import (
	"strconv"
	"strings"

	"github.com/teemow/inboxdigest/internal/gmail"
)

// BlockDelimiter ends every email block in a prompt.
const BlockDelimiter = "---"

const promptPreamble = `You are an assistant that reviews a person's recent email and writes a short digest.

Analyze the emails below, received in the last %DAYS% days, and respond with a single JSON object only.
Do not add any text before or after the JSON and do not wrap it in markdown.
The object must have exactly these five fields:
  "summary": a string with a brief overview of the period
  "important_topics": an array of strings
  "action_items": an array of strings describing tasks the reader should follow up on
  "key_contacts": an array of strings naming the most relevant people or organizations
  "sentiment": exactly one of "positive", "neutral", "negative"

Emails:

`

// FormatEmailBlock renders one email at its 1-based position in the prompt.
func FormatEmailBlock(index int, e gmail.NormalizedEmail) string {
	var b strings.Builder
	b.WriteString("Email ")
	b.WriteString(strconv.Itoa(index))
	b.WriteString(":\nFrom: ")
	b.WriteString(e.From)
	b.WriteString("\nSubject: ")
	b.WriteString(e.Subject)
	b.WriteString("\nDate: ")
	b.WriteString(e.Date)
	b.WriteString("\nContent: ")
	b.WriteString(e.Snippet)
	b.WriteString("\n")
	b.WriteString(BlockDelimiter)
	b.WriteString("\n")
	return b.String()
}

// BuildPrompt serializes the selected emails, in selection order, after the
// instruction preamble. The output depends only on its arguments.
func BuildPrompt(emails []gmail.NormalizedEmail, days int) string {
	var b strings.Builder
	b.WriteString(strings.Replace(promptPreamble, "%DAYS%", strconv.Itoa(days), 1))
	for i, e := range emails {
		b.WriteString(FormatEmailBlock(i+1, e))
	}
	return b.String()
}
