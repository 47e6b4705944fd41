package types

import (
	"context"
)

// LLMClient defines the interface for free-text generation.
// Implementations own rate-limit retries; a returned error is a hard failure.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Mailbox is the mail collaborator the core depends on.
type Mailbox interface {
	// ListCandidates returns references to messages matching a provider query.
	ListCandidates(ctx context.Context, query string) ([]MessageRef, error)

	// FetchFull loads a message with headers and extracted body text.
	FetchFull(ctx context.Context, id string) (InboundMessage, error)

	// SendReply sends a plain-text message.
	SendReply(ctx context.Context, to, subject, body string) error

	// ApplyLabels adds and removes label IDs on a message.
	ApplyLabels(ctx context.Context, id string, add, remove []string) error

	// EnsureLabels creates missing labels and returns name -> ID.
	EnsureLabels(ctx context.Context, names []string) (map[string]string, error)
}
