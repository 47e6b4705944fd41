package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"replydesk/internal/logging"
	"replydesk/internal/pii"
	"replydesk/internal/retrieval"
	"replydesk/internal/types"
	"replydesk/internal/verification"
)

const (
	draftPreviewLen   = 800
	contextPreviewLen = 2
)

// Validator judges a draft against policy context.
type Validator interface {
	Validate(ctx context.Context, policy []string, draft string) (verification.Verdict, error)
}

// Responder performs the mailbox side effects of the terminal states.
type Responder interface {
	// Reply sends body to the sender and labels the message processed,
	// adding the review label when flagForReview is set.
	Reply(ctx context.Context, msg types.InboundMessage, body string, flagForReview bool) error

	// Escalate labels the message for human review without replying.
	Escalate(ctx context.Context, messageID string) error
}

// Config holds the tunables of the state machine.
type Config struct {
	MaxRewrites int
	RetrievalK  int
	Signature   string
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxRewrites: DefaultMaxRewrites,
		RetrievalK:  4,
		Signature:   "Sincerely,\nCustomer Support",
	}
}

// Deps are the collaborators of the state machine. All must be safe for
// concurrent use by independent runs.
type Deps struct {
	Retriever retrieval.Retriever
	LLM       types.LLMClient
	Validator Validator
	Responder Responder
	Audit     logging.Recorder
}

// Engine executes reply runs.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New creates an engine.
func New(deps Deps, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxRewrites < 0 {
		cfg.MaxRewrites = 0
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = DefaultConfig().RetrievalK
	}
	return &Engine{deps: deps, cfg: cfg, logger: logging.For(logger, logging.CategoryWorkflow)}
}

// Run drives rs from RETRIEVE to a terminal state. A failed external call
// ends the run with an error; the failing state emits no audit entry.
func (e *Engine) Run(ctx context.Context, rs RunState) (RunState, error) {
	state := StateRetrieve
	for state != StateDone {
		next, updated, err := e.Transition(ctx, state, rs)
		rs = updated
		if err != nil {
			return rs, fmt.Errorf("%s: %w", state, err)
		}
		state = next
	}
	return rs, nil
}

// Transition executes one state and returns the next one. It emits exactly
// one audit entry when the state's work succeeds.
func (e *Engine) Transition(ctx context.Context, state State, rs RunState) (State, RunState, error) {
	switch state {
	case StateRetrieve:
		return e.retrieve(ctx, rs)
	case StateDraft:
		return e.draft(ctx, rs)
	case StateValidate:
		return e.validate(ctx, rs)
	case StateRewrite:
		return e.rewrite(ctx, rs)
	case StateSend:
		// A started send always finishes so labels are never left half-applied.
		return e.send(context.WithoutCancel(ctx), rs)
	case StateEscalate:
		return e.escalate(context.WithoutCancel(ctx), rs)
	default:
		return StateDone, rs, fmt.Errorf("unknown workflow state %q", state)
	}
}

func (e *Engine) retrieve(ctx context.Context, rs RunState) (State, RunState, error) {
	docs, err := e.deps.Retriever.Query(ctx, rs.Message.Text(), e.cfg.RetrievalK)
	if err != nil {
		return StateRetrieve, rs, err
	}
	rs.RetrievedDocs = docs
	rs.Decision = logging.DecisionRetrieve
	rs.Reason = "Retrieved policy context"

	entry := e.entry(rs, StateRetrieve)
	entry.MatchedKeywords = rs.MatchedKeywords
	entry.ContextPreview = docs[:min(contextPreviewLen, len(docs))]
	if err := e.record(entry); err != nil {
		return StateRetrieve, rs, err
	}
	return StateDraft, rs, nil
}

func (e *Engine) draft(ctx context.Context, rs RunState) (State, RunState, error) {
	prompt := DraftPrompt(rs.RetrievedDocs, rs.Message.Text(), e.cfg.Signature)
	draft, err := e.deps.LLM.Complete(ctx, prompt)
	if err != nil {
		return StateDraft, rs, err
	}
	rs.Draft = draft
	rs.Decision = logging.DecisionDraft
	rs.Reason = "Draft generated"

	entry := e.entry(rs, StateDraft)
	entry.DraftPreview = preview(draft, draftPreviewLen)
	if err := e.record(entry); err != nil {
		return StateDraft, rs, err
	}
	return StateValidate, rs, nil
}

func (e *Engine) validate(ctx context.Context, rs RunState) (State, RunState, error) {
	verdict, err := e.deps.Validator.Validate(ctx, rs.RetrievedDocs, rs.Draft)
	if err != nil {
		return StateValidate, rs, err
	}
	verdict.PIIInRequest = pii.Detect(rs.Message.Text())
	verdict.PIIInDraft = pii.Detect(rs.Draft)
	rs.Verdict = verdict
	rs.PIIInRequest = verdict.PIIInRequest

	decision := logging.DecisionValidated
	if verdict.Approved() {
		rs.Decision = logging.DecisionReply
		rs.Reason = "Validation passed"
		if len(rs.PIIInRequest) > 0 {
			rs.Reason += " (PII in request: will escalate after reply)"
		}
	} else {
		decision = logging.DecisionRewrite
		rs.Decision = logging.DecisionRewrite
		rs.Reason = rejectionReason(verdict)
	}

	entry := e.entry(rs, StateValidate)
	entry.Decision = decision
	entry.PIIRequest = pii.Strings(verdict.PIIInRequest)
	entry.PIIDraft = pii.Strings(verdict.PIIInDraft)
	entry.RewriteCount = rs.RewriteCount
	if err := e.record(entry); err != nil {
		return StateValidate, rs, err
	}
	return Route(rs, e.cfg.MaxRewrites), rs, nil
}

func (e *Engine) rewrite(ctx context.Context, rs RunState) (State, RunState, error) {
	feedback := rs.Reason
	if feedback == "" {
		feedback = rs.Verdict.Reason
	}
	prompt := RewritePrompt(feedback, rs.RetrievedDocs, rs.Draft, e.cfg.Signature)
	draft, err := e.deps.LLM.Complete(ctx, prompt)
	if err != nil {
		return StateRewrite, rs, err
	}
	rs.Draft = draft
	rs.RewriteCount++
	rs.Decision = logging.DecisionRewrite
	rs.Reason = fmt.Sprintf("Rewrite #%d", rs.RewriteCount)

	entry := e.entry(rs, StateRewrite)
	entry.DraftPreview = preview(draft, draftPreviewLen)
	entry.RewriteCount = rs.RewriteCount
	if err := e.record(entry); err != nil {
		return StateRewrite, rs, err
	}
	return StateValidate, rs, nil
}

func (e *Engine) send(ctx context.Context, rs RunState) (State, RunState, error) {
	flag := len(rs.PIIInRequest) > 0
	if err := e.deps.Responder.Reply(ctx, rs.Message, rs.Draft, flag); err != nil {
		return StateSend, rs, err
	}
	rs.FinalReply = rs.Draft
	rs.Decision = logging.DecisionReply
	rs.Reason = "Reply sent"
	if flag {
		rs.Reason += " (escalated for PII review)"
	}

	entry := e.entry(rs, StateSend)
	entry.PIIRequest = pii.Strings(rs.PIIInRequest)
	entry.RewriteCount = rs.RewriteCount
	if err := e.record(entry); err != nil {
		return StateSend, rs, err
	}
	e.logger.Info("reply sent",
		zap.String("message_id", rs.Message.ID),
		zap.Int("rewrites", rs.RewriteCount),
		zap.Bool("flagged", flag))
	return StateDone, rs, nil
}

func (e *Engine) escalate(ctx context.Context, rs RunState) (State, RunState, error) {
	if err := e.deps.Responder.Escalate(ctx, rs.Message.ID); err != nil {
		return StateEscalate, rs, err
	}
	rs.Decision = logging.DecisionEscalate
	rs.Reason = escalationReason(rs)

	entry := e.entry(rs, StateEscalate)
	entry.PIIDraft = pii.Strings(rs.Verdict.PIIInDraft)
	entry.RewriteCount = rs.RewriteCount
	if err := e.record(entry); err != nil {
		return StateEscalate, rs, err
	}
	e.logger.Info("message escalated",
		zap.String("message_id", rs.Message.ID),
		zap.String("reason", rs.Reason))
	return StateDone, rs, nil
}

func (e *Engine) entry(rs RunState, state State) logging.DecisionEntry {
	return logging.DecisionEntry{
		MessageID: rs.Message.ID,
		FromAddr:  rs.Message.FromAddress,
		Subject:   rs.Message.Subject,
		State:     string(state),
		Decision:  rs.Decision,
		Reason:    rs.Reason,
		CycleID:   rs.CycleID,
		RunID:     rs.RunID,
	}
}

func (e *Engine) record(entry logging.DecisionEntry) error {
	if err := e.deps.Audit.Record(entry); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

// rejectionReason prefers the judge's reason unless the judge approved a
// draft that still carries personal data.
func rejectionReason(v verification.Verdict) string {
	judgeApproved := v.IsValid && v.ToneOK && v.GroundedOK
	switch {
	case judgeApproved && len(v.PIIInDraft) > 0:
		return "PII found in draft"
	case v.Reason != "":
		return v.Reason
	case len(v.PIIInDraft) > 0:
		return "PII found in draft"
	default:
		return "Rewrite required"
	}
}

func escalationReason(rs RunState) string {
	attempts := rs.RewriteCount + 1
	if len(rs.Verdict.PIIInDraft) > 0 {
		return fmt.Sprintf("PII still in draft after %d attempts (%s)", attempts, pii.Join(rs.Verdict.PIIInDraft))
	}
	return fmt.Sprintf("Failed validation after %d attempts: %s", attempts, rejectionReason(rs.Verdict))
}

// preview truncates s to at most n runes.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
