// Package types holds the domain records and ports shared across replydesk packages.
package types

// MessageRef identifies a candidate message before it is fetched.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id,omitempty"`
}

// InboundMessage is a fetched customer email. It is immutable once fetched
// and owned by exactly one workflow run.
type InboundMessage struct {
	ID          string `json:"id"`
	FromAddress string `json:"from_address"`
	Subject     string `json:"subject"`
	BodyText    string `json:"body_text"`
}

// Text is the combined subject and body used for retrieval, drafting and
// inbound PII scanning.
func (m InboundMessage) Text() string {
	return m.Subject + "\n" + m.BodyText
}
