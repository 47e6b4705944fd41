// Package verification judges reply drafts against the retrieved policy
// context. Malformed judge output degrades to a rejecting verdict.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"replydesk/internal/logging"
	"replydesk/internal/pii"
	"replydesk/internal/types"
)

// ParseErrorReason is the reason carried by the verdict returned when the
// judge never produced a usable answer.
const ParseErrorReason = "validator_parse_error"

// MaxAttempts bounds judge calls per validation.
const MaxAttempts = 2

const retryInstruction = "\nRespond JSON only. No prose."

// Verdict is one validation outcome. It is produced fresh for every attempt
// and never mutated afterwards.
type Verdict struct {
	IsValid      bool       `json:"is_valid"`
	ToneOK       bool       `json:"tone_ok"`
	GroundedOK   bool       `json:"grounded_ok"`
	Reason       string     `json:"reason"`
	PIIInRequest []pii.Kind `json:"pii_in_request,omitempty"`
	PIIInDraft   []pii.Kind `json:"pii_in_draft,omitempty"`
}

// Approved reports whether the draft may be sent: the judge accepted it on
// every axis and no personal data was found in it.
func (v Verdict) Approved() bool {
	return v.IsValid && v.ToneOK && v.GroundedOK && len(v.PIIInDraft) == 0
}

// ParseFailure is the verdict used when no attempt parsed.
func ParseFailure() Verdict {
	return Verdict{Reason: ParseErrorReason}
}

var errMissingField = errors.New("missing required field")

// Oracle asks the generation model to judge a draft.
type Oracle struct {
	llm    types.LLMClient
	logger *zap.Logger
}

// NewOracle creates an oracle over llm.
func NewOracle(llm types.LLMClient, logger *zap.Logger) *Oracle {
	return &Oracle{llm: llm, logger: logging.For(logger, logging.CategoryVerify)}
}

// Validate judges draft against context. Unparseable answers are retried
// once with a stricter instruction and then degrade to ParseFailure.
// Only generation failures are returned as errors.
func (o *Oracle) Validate(ctx context.Context, policy []string, draft string) (Verdict, error) {
	prompt := BuildPrompt(policy, draft)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		raw, err := o.llm.Complete(ctx, prompt)
		if err != nil {
			return Verdict{}, fmt.Errorf("validator: %w", err)
		}

		v, perr := ParseVerdict(raw)
		if perr == nil {
			o.logger.Debug("verdict parsed",
				zap.Int("attempt", attempt),
				zap.Bool("is_valid", v.IsValid),
				zap.Bool("tone_ok", v.ToneOK),
				zap.Bool("grounded_ok", v.GroundedOK))
			return v, nil
		}

		o.logger.Warn("unparseable verdict", zap.Int("attempt", attempt), zap.Error(perr))
		prompt += retryInstruction
	}

	return ParseFailure(), nil
}

// BuildPrompt renders the judge prompt.
func BuildPrompt(policy []string, draft string) string {
	var b strings.Builder
	b.WriteString("You are a strict validator for customer support replies.\n")
	b.WriteString("Return ONLY a JSON object with keys:\n")
	b.WriteString("- is_valid: boolean\n")
	b.WriteString("- reason: string\n")
	b.WriteString("- tone_ok: boolean\n")
	b.WriteString("- grounded_ok: boolean\n\n")
	b.WriteString("Rule: grounded_ok=true only if the DRAFT strictly aligns with POLICY content.\n")
	b.WriteString("Tone must be polite and concise.\n\n")
	b.WriteString("POLICY:\n---\n")
	b.WriteString(strings.Join(policy, "\n---\n"))
	b.WriteString("\n---\n\nDRAFT:\n---\n")
	b.WriteString(draft)
	b.WriteString("\n---\nJSON ONLY:\n")
	return b.String()
}

// ParseVerdict parses a judge answer. It tries the whole answer (code
// fences stripped) and then the first balanced {...} span. All four fields
// must be present with the right types.
func ParseVerdict(raw string) (Verdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	v, err := strictParse(cleaned)
	if err == nil {
		return v, nil
	}

	span := extractJSONObject(raw)
	if span == "" {
		return Verdict{}, fmt.Errorf("no JSON object in response: %w", err)
	}
	return strictParse(span)
}

type wireVerdict struct {
	IsValid    *bool   `json:"is_valid"`
	Reason     *string `json:"reason"`
	ToneOK     *bool   `json:"tone_ok"`
	GroundedOK *bool   `json:"grounded_ok"`
}

func strictParse(s string) (Verdict, error) {
	var w wireVerdict
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Verdict{}, fmt.Errorf("failed to parse verdict JSON: %w", err)
	}
	switch {
	case w.IsValid == nil:
		return Verdict{}, fmt.Errorf("%w: is_valid", errMissingField)
	case w.Reason == nil:
		return Verdict{}, fmt.Errorf("%w: reason", errMissingField)
	case w.ToneOK == nil:
		return Verdict{}, fmt.Errorf("%w: tone_ok", errMissingField)
	case w.GroundedOK == nil:
		return Verdict{}, fmt.Errorf("%w: grounded_ok", errMissingField)
	}
	return Verdict{
		IsValid:    *w.IsValid,
		Reason:     *w.Reason,
		ToneOK:     *w.ToneOK,
		GroundedOK: *w.GroundedOK,
	}, nil
}

// extractJSONObject returns the first balanced {...} span, skipping braces
// inside JSON strings.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
