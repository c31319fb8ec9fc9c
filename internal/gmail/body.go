package gmail

import (
	"encoding/base64"
	"strings"
)

// DefaultBodyCharLimit caps the extracted body length in characters.
const DefaultBodyCharLimit = 2000

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// ExtractBody returns the best plain-text rendering of a payload tree,
// truncated to limit characters. A limit of zero or less disables truncation.
//
// Plain text wins over HTML and shallow parts win over deep ones: a node's own
// inline data is used first, then a direct text/plain child, then a direct
// text/html child, then the first child subtree that yields any text.
// It returns "" when nothing usable is found.
func ExtractBody(p *MimePayload, limit int) string {
	return Truncate(extractText(p), limit)
}

func extractText(p *MimePayload) string {
	if p == nil {
		return ""
	}

	mt := p.MediaType()
	if p.HasData() && (isTextType(mt) || (len(p.Parts) == 0 && !isBinaryType(mt))) {
		return decodePart(p)
	}

	if len(p.Parts) == 0 {
		return ""
	}

	if part := directChild(p.Parts, mimeTextPlain); part != nil {
		return decodePart(part)
	}
	if part := directChild(p.Parts, mimeTextHTML); part != nil {
		return decodePart(part)
	}

	for _, part := range p.Parts {
		if text := extractText(part); text != "" {
			return text
		}
	}
	return ""
}

// directChild returns the first child of the given media type with inline data.
func directChild(parts []*MimePayload, want string) *MimePayload {
	for _, part := range parts {
		if part.HasData() && part.MediaType() == want {
			return part
		}
	}
	return nil
}

// decodePart decodes a node's inline data, reducing HTML to text.
func decodePart(p *MimePayload) string {
	text := DecodeBase64Text(p.Body.Data)
	if p.MediaType() == mimeTextHTML {
		return ReduceHTML(text)
	}
	return text
}

// DecodeBase64Text decodes base64 body data into valid UTF-8 text.
// Gmail uses the URL-safe alphabet. Other sources may use the standard one,
// with or without padding. Undecodable input yields "".
func DecodeBase64Text(data string) string {
	encodings := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	for _, enc := range encodings {
		raw, err := enc.DecodeString(data)
		if err == nil {
			return strings.ToValidUTF8(string(raw), "�")
		}
	}
	return ""
}

func isTextType(mt string) bool {
	return mt == mimeTextPlain || mt == mimeTextHTML
}

// isBinaryType reports declared types that never hold readable body text.
func isBinaryType(mt string) bool {
	for _, prefix := range []string{"image/", "audio/", "video/", "application/"} {
		if strings.HasPrefix(mt, prefix) {
			return true
		}
	}
	return false
}
