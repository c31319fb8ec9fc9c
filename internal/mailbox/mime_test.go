package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxdigest/internal/gmail"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParseMessage_PlainText(t *testing.T) {
	raw := crlf(`From: Alice <alice@example.com>
Subject: Lunch
Date: Mon, 01 Jan 2024 10:00:00 +0000
Message-Id: <lunch@example.com>
Content-Type: text/plain; charset=utf-8

Shall we meet at noon?
`)

	msg, err := ParseMessage("m1", strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), msg.InternalDate)
	assert.Equal(t, "Alice <alice@example.com>", gmail.HeaderValue(msg.Headers, "From"))

	email := gmail.Normalize(msg, gmail.DefaultSnippetCharLimit, gmail.DefaultBodyCharLimit)
	assert.Equal(t, "Lunch", email.Subject)
	assert.Equal(t, "Shall we meet at noon?", email.Snippet)
}

func TestParseMessage_MultipartPrefersPlainText(t *testing.T) {
	raw := crlf(`From: bob@example.com
Subject: Report
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/html; charset=utf-8

<p>HTML version</p>
--inner
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

Plain =C3=BCber version
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQK
--outer--
`)

	msg, err := ParseMessage("m2", strings.NewReader(raw))
	require.NoError(t, err)

	require.NotNil(t, msg.Payload)
	assert.Equal(t, "multipart/mixed", msg.Payload.MimeType)
	require.Len(t, msg.Payload.Parts, 2)

	attachment := msg.Payload.Parts[1]
	assert.Equal(t, "application/pdf", attachment.MimeType)
	assert.Equal(t, "report.pdf", attachment.Filename)
	assert.False(t, attachment.HasData())

	body := gmail.ExtractBody(msg.Payload, 0)
	assert.Equal(t, "Plain über version", strings.TrimSpace(body))
}

func TestParseMessage_DecodesCharsetAndEncodedWords(t *testing.T) {
	raw := crlf(`From: =?ISO-8859-1?Q?J=F6rg?= <joerg@example.com>
Subject: =?UTF-8?B?R3LDvMOfZQ==?=
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

Sch=F6ne Gr=FC=DFe
`)

	msg, err := ParseMessage("m3", strings.NewReader(raw))
	require.NoError(t, err)

	email := gmail.Normalize(msg, 0, 0)
	assert.Equal(t, "Jörg <joerg@example.com>", email.From)
	assert.Equal(t, "Grüße", email.Subject)
	assert.Equal(t, "Schöne Grüße", email.Snippet)
}

func TestParseMessage_MissingHeaders(t *testing.T) {
	msg, err := ParseMessage("m4", strings.NewReader(crlf("\nbody only\n")))
	require.NoError(t, err)

	assert.True(t, msg.InternalDate.IsZero())
	assert.Equal(t, "text/plain", msg.Payload.MimeType)

	email := gmail.Normalize(msg, 0, 0)
	assert.Equal(t, gmail.DefaultFrom, email.From)
	assert.Equal(t, gmail.DefaultSubject, email.Subject)
	assert.Equal(t, gmail.DefaultDate, email.Date)
}

func TestParseMessage_ThreadIDFromReferences(t *testing.T) {
	raw := crlf(`Subject: Re: plan
References: <root@example.com> <reply1@example.com>

ok
`)

	msg, err := ParseMessage("m5", strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", msg.ThreadID)
}
