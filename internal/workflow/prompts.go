package workflow

import (
	"fmt"
	"strings"

	"replydesk/internal/pii"
)

// DraftPrompt asks for a reply grounded only in the retrieved policy text.
func DraftPrompt(policy []string, emailText, signature string) string {
	var b strings.Builder
	b.WriteString("You are a helpful customer support agent.\n")
	b.WriteString("Use ONLY the policy context below. If the answer is not present, say you'll escalate.\n")
	b.WriteString("Do NOT invent details. Be concise, polite, professional.\n")
	b.WriteString("NEVER echo or reveal any personal data (emails, booking codes, phone, card numbers). ")
	b.WriteString("If present in the customer text, REDACT it as [REDACTED].\n\n")
	b.WriteString("Always close the reply with:\n")
	b.WriteString(signature)
	b.WriteString("\n\nPolicy Context:\n---\n")
	b.WriteString(strings.Join(policy, "\n"))
	b.WriteString("\n---\n\nCustomer email:\n---\n")
	b.WriteString(emailText)
	b.WriteString("\n---\n\n")
	b.WriteString("Write a concise reply strictly grounded in the policy. ")
	b.WriteString("If policy doesn't cover it, say you'll escalate to a human agent.\n")
	return b.String()
}

// RewritePrompt asks for a corrected draft. The previous draft is redacted
// so personal data is not fed back to the model.
func RewritePrompt(feedback string, policy []string, previous, signature string) string {
	if strings.TrimSpace(feedback) == "" {
		feedback = "Fix issues."
	}
	return fmt.Sprintf(`Revise the reply to fix issues: %s
Stay strictly within policy context below. Never include PII. Redact any PII as [REDACTED].
Close the reply with:
%s
---
%s
---
Original reply:
---
%s
---
New reply (concise, polite):`, feedback, signature, strings.Join(policy, "\n"), pii.Redact(previous))
}
