// Package workflow implements the per-message reply state machine:
// RETRIEVE → DRAFT → VALIDATE → {REWRITE → VALIDATE}* → {SEND | ESCALATE}.
package workflow

import (
	"replydesk/internal/logging"
	"replydesk/internal/pii"
	"replydesk/internal/types"
	"replydesk/internal/verification"
)

// DefaultMaxRewrites bounds rewrites per message.
const DefaultMaxRewrites = 2

// State is a step of the reply state machine.
type State string

const (
	StateRetrieve State = "RETRIEVE"
	StateDraft    State = "DRAFT"
	StateValidate State = "VALIDATE"
	StateRewrite  State = "REWRITE"
	StateSend     State = "SEND"
	StateEscalate State = "ESCALATE"
	StateDone     State = "DONE"
)

// Terminal reports whether executing s ends the run.
func (s State) Terminal() bool {
	return s == StateSend || s == StateEscalate
}

// RunState is threaded through one message's run. It is owned by that run
// and never shared.
type RunState struct {
	Message         types.InboundMessage
	MatchedKeywords []string
	RetrievedDocs   []string
	Draft           string
	Verdict         verification.Verdict
	RewriteCount    int
	PIIInRequest    []pii.Kind
	Decision        logging.Decision
	Reason          string
	FinalReply      string

	CycleID string
	RunID   string
}

// NewRunState starts a run for an admitted message.
func NewRunState(msg types.InboundMessage, matched []string) RunState {
	return RunState{Message: msg, MatchedKeywords: matched}
}

// Route picks the step after VALIDATE: an approved draft is sent, a
// rejected one is rewritten while rewrites remain, otherwise escalated.
func Route(rs RunState, maxRewrites int) State {
	if rs.Verdict.Approved() {
		return StateSend
	}
	if rs.RewriteCount < maxRewrites {
		return StateRewrite
	}
	return StateEscalate
}
