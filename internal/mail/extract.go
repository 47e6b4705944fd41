package mail

import (
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/net/html"
	"google.golang.org/api/gmail/v1"

	"replydesk/internal/types"
)

// ErrNoBody is returned by ExtractText when no text part can be decoded.
var ErrNoBody = errors.New("no text body")

// NoSubject replaces a missing Subject header.
const NoSubject = "(no subject)"

// HeadersMap maps header names to values. Later duplicates win.
func HeadersMap(msg *gmail.Message) map[string]string {
	out := make(map[string]string)
	if msg == nil || msg.Payload == nil {
		return out
	}
	for _, h := range msg.Payload.Headers {
		if h == nil {
			continue
		}
		out[h.Name] = h.Value
	}
	return out
}

// ExtractText walks the MIME tree depth first and returns the first
// text/plain leaf, or a text/html leaf stripped of markup.
func ExtractText(part *gmail.MessagePart) (string, error) {
	if part == nil {
		return "", ErrNoBody
	}
	if strings.HasPrefix(part.MimeType, "multipart/") {
		for _, p := range part.Parts {
			if text, err := ExtractText(p); err == nil {
				return text, nil
			}
		}
		return "", ErrNoBody
	}
	if part.Body == nil || part.Body.Data == "" {
		return "", ErrNoBody
	}
	raw, err := decodeData(part.Body.Data)
	if err != nil {
		return "", ErrNoBody
	}

	switch part.MimeType {
	case "text/plain":
		if raw == "" {
			return "", ErrNoBody
		}
		return raw, nil
	case "text/html":
		text := StripHTML(raw)
		if text == "" {
			return "", ErrNoBody
		}
		return text, nil
	}
	return "", ErrNoBody
}

// BodyText prefers the MIME text and falls back to the snippet.
func BodyText(msg *gmail.Message) string {
	if msg == nil {
		return ""
	}
	if text, err := ExtractText(msg.Payload); err == nil {
		return text
	}
	return msg.Snippet
}

// ToInbound converts a full-format message into the domain record.
func ToInbound(msg *gmail.Message) types.InboundMessage {
	headers := HeadersMap(msg)
	subject, ok := headers["Subject"]
	if !ok {
		subject = NoSubject
	}
	return types.InboundMessage{
		ID:          msg.Id,
		FromAddress: headers["From"],
		Subject:     subject,
		BodyText:    BodyText(msg),
	}
}

// StripHTML returns the visible text of an HTML fragment with whitespace
// collapsed.
func StripHTML(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	collectText(doc, &sb, 0)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func collectText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 64 {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "head":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb, depth+1)
	}
}

// decodeData accepts both padded and unpadded base64url.
func decodeData(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return "", err
		}
	}
	return string(b), nil
}
