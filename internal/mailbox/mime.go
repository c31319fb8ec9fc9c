package mailbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	// Register charset decoders (windows-1252, iso-8859-*, koi8-r, etc.)
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/teemow/inboxdigest/internal/gmail"
)

// maxPartBytes caps how much of a single text part is kept in memory.
const maxPartBytes = 1 << 20

// ParseMessage parses a raw RFC 5322 message into a gmail.Message.
//
// Transfer encodings and charsets are decoded; each text leaf is stored as
// URL-safe base64 so gmail.ExtractBody treats it like an API payload.
// Binary leaves keep only their size.
func ParseMessage(id string, r io.Reader) (*gmail.Message, error) {
	entity, err := message.Read(r)
	if err != nil && !tolerable(err) {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}

	payload, err := convertEntity(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}

	msg := &gmail.Message{
		ID:      id,
		Headers: payload.Headers,
		Payload: payload,
	}

	mh := mail.Header{Header: entity.Header}
	if date, err := mh.Date(); err == nil && !date.IsZero() {
		msg.InternalDate = date.UTC()
	}
	if refs := strings.TrimSpace(entity.Header.Get("References")); refs != "" {
		msg.ThreadID = trimAngles(strings.Fields(refs)[0])
	}

	return msg, nil
}

func convertEntity(e *message.Entity) (*gmail.MimePayload, error) {
	p := &gmail.MimePayload{
		MimeType: "text/plain",
		Headers:  convertHeaders(e.Header),
	}

	if mt, _, err := e.Header.ContentType(); err == nil && mt != "" {
		p.MimeType = strings.ToLower(mt)
	}
	if _, params, err := e.Header.ContentDisposition(); err == nil {
		p.Filename = params["filename"]
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil && !tolerable(err) {
				return nil, fmt.Errorf("failed to read multipart body: %w", err)
			}
			child, err := convertEntity(part)
			if err != nil {
				return nil, err
			}
			p.Parts = append(p.Parts, child)
		}
		return p, nil
	}

	if isBinaryMedia(p.MimeType) {
		n, err := io.Copy(io.Discard, e.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s part: %w", p.MimeType, err)
		}
		p.Body = &gmail.MessageBody{Size: n}
		return p, nil
	}

	data, err := io.ReadAll(io.LimitReader(e.Body, maxPartBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s part: %w", p.MimeType, err)
	}
	p.Body = &gmail.MessageBody{
		Data: base64.URLEncoding.EncodeToString(data),
		Size: int64(len(data)),
	}
	return p, nil
}

func convertHeaders(h message.Header) []gmail.Header {
	var headers []gmail.Header
	fields := h.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers = append(headers, gmail.Header{Name: fields.Key(), Value: value})
	}
	return headers
}

// tolerable reports whether a parse error still leaves a usable entity.
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func isBinaryMedia(mt string) bool {
	for _, prefix := range []string{"image/", "audio/", "video/", "application/"} {
		if strings.HasPrefix(mt, prefix) {
			return true
		}
	}
	return false
}

func trimAngles(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "<"), ">")
}
