package mail

import (
	"encoding/base64"
	"mime"
	"strings"
)

// ReplySubject prefixes subject with "Re: " unless it already has one, so
// long threads do not grow "Re: Re: " chains.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// ComposeRaw builds a minimal plain-text RFC 2822 message and encodes it
// as base64url for the Gmail send endpoint. Non-ASCII subjects are sent as
// RFC 2047 encoded-words.
func ComposeRaw(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + sanitizeHeader(to) + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(subject)) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

// sanitizeHeader keeps header values on one line.
func sanitizeHeader(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
