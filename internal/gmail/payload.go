package gmail

import (
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

// FromAPIMessage converts a full-format Gmail API message.
func FromAPIMessage(m *gmail.Message) *Message {
	if m == nil {
		return nil
	}
	msg := &Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
		Payload:  FromAPIPart(m.Payload),
	}
	if msg.Payload != nil {
		msg.Headers = msg.Payload.Headers
	}
	if m.InternalDate > 0 {
		msg.InternalDate = time.UnixMilli(m.InternalDate).UTC()
	}
	return msg
}

// FromAPIPart converts a Gmail API message part tree.
func FromAPIPart(part *gmail.MessagePart) *MimePayload {
	if part == nil {
		return nil
	}

	p := &MimePayload{
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		if h == nil {
			continue
		}
		p.Headers = append(p.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		p.Body = &MessageBody{Data: part.Body.Data, Size: part.Body.Size}
	}
	for _, child := range part.Parts {
		if c := FromAPIPart(child); c != nil {
			p.Parts = append(p.Parts, c)
		}
	}
	return p
}
