// Package pii detects and redacts personal data in customer mail and drafts.
package pii

import (
	"regexp"
	"strings"
	"unicode"
)

// Kind names a class of personal data.
type Kind string

const (
	CreditCard       Kind = "credit_card_like_number"
	Email            Kind = "email_address"
	Phone            Kind = "phone_number_like"
	BookingReference Kind = "booking_reference_like"
)

// Redaction placeholders.
const (
	CardPlaceholder  = "[redacted_card]"
	EmailPlaceholder = "[redacted_email]"
	PhonePlaceholder = "[redacted_phone]"
	RefPlaceholder   = "[redacted_ref]"
)

var (
	reCard  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	reEmail = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	rePhone = regexp.MustCompile(`\+?\d[\d\s\-()]{8,}`)
	reRef   = regexp.MustCompile(`\b[A-Z0-9]{6,8}\b`)
)

// Detect returns the kinds of personal data present in text, in the order
// card, email, phone, reference. Each kind appears at most once.
func Detect(text string) []Kind {
	var kinds []Kind
	if reCard.MatchString(text) {
		kinds = append(kinds, CreditCard)
	}
	if reEmail.MatchString(text) {
		kinds = append(kinds, Email)
	}
	if rePhone.MatchString(text) {
		kinds = append(kinds, Phone)
	}
	if FirstReference(text) != "" {
		kinds = append(kinds, BookingReference)
	}
	return kinds
}

// FirstReference returns the first booking-reference-like token, or "".
// A token qualifies when it is 6-8 uppercase letters and digits with at
// least one of each.
func FirstReference(text string) string {
	for _, tok := range reRef.FindAllString(text, -1) {
		if isReference(tok) {
			return tok
		}
	}
	return ""
}

// Redact replaces every match with its placeholder, pattern by pattern in
// the order card, email, phone, reference.
func Redact(text string) string {
	text = reCard.ReplaceAllString(text, CardPlaceholder)
	text = reEmail.ReplaceAllString(text, EmailPlaceholder)
	text = rePhone.ReplaceAllString(text, PhonePlaceholder)
	return reRef.ReplaceAllStringFunc(text, func(tok string) string {
		if isReference(tok) {
			return RefPlaceholder
		}
		return tok
	})
}

// Strings converts kinds for logging.
func Strings(kinds []Kind) []string {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// Join renders kinds as a comma-separated list.
func Join(kinds []Kind) string {
	return strings.Join(Strings(kinds), ", ")
}

func isReference(tok string) bool {
	var letter, digit bool
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			letter = true
		}
	}
	return letter && digit
}
