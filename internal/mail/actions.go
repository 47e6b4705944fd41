package mail

import (
	"context"

	"go.uber.org/zap"

	"replydesk/internal/logging"
	"replydesk/internal/types"
)

// UnreadLabel is the system label removed from every handled message.
const UnreadLabel = "UNREAD"

// Labels names the labels the agent manages.
type Labels struct {
	Inbound   string
	Processed string
	Review    string
	Scanned   string
}

// Names returns the label names in a stable order.
func (l Labels) Names() []string {
	return []string{l.Inbound, l.Processed, l.Review, l.Scanned}
}

// Actions applies the terminal mailbox side effects of a run. Every action
// removes UNREAD and the inbound label so a handled message is never
// picked up again.
type Actions struct {
	mb     types.Mailbox
	labels Labels
	ids    map[string]string
	logger *zap.Logger
}

// NewActions creates the label actions. ids maps label names to provider
// IDs as returned by EnsureLabels; unknown names are used as IDs.
func NewActions(mb types.Mailbox, labels Labels, ids map[string]string, logger *zap.Logger) *Actions {
	return &Actions{mb: mb, labels: labels, ids: ids, logger: logging.For(logger, logging.CategoryMail)}
}

// PrepareActions ensures the managed labels exist and returns the actions
// bound to their IDs.
func PrepareActions(ctx context.Context, mb types.Mailbox, labels Labels, logger *zap.Logger) (*Actions, error) {
	ids, err := mb.EnsureLabels(ctx, labels.Names())
	if err != nil {
		return nil, err
	}
	return NewActions(mb, labels, ids, logger), nil
}

func (a *Actions) id(name string) string {
	if id, ok := a.ids[name]; ok && id != "" {
		return id
	}
	return name
}

func (a *Actions) done() []string {
	return []string{UnreadLabel, a.id(a.labels.Inbound)}
}

// Reply sends body as "Re: <subject>" to the sender and labels the message
// processed, plus review when flagForReview is set.
func (a *Actions) Reply(ctx context.Context, msg types.InboundMessage, body string, flagForReview bool) error {
	if err := a.mb.SendReply(ctx, msg.FromAddress, ReplySubject(msg.Subject), body); err != nil {
		return err
	}
	add := []string{a.id(a.labels.Processed)}
	if flagForReview {
		add = append(add, a.id(a.labels.Review))
	}
	if err := a.mb.ApplyLabels(ctx, msg.ID, add, a.done()); err != nil {
		return err
	}
	a.logger.Debug("replied", zap.String("message_id", msg.ID), zap.Bool("review", flagForReview))
	return nil
}

// Escalate labels the message for human review without replying.
func (a *Actions) Escalate(ctx context.Context, messageID string) error {
	return a.mb.ApplyLabels(ctx, messageID, []string{a.id(a.labels.Review)}, a.done())
}

// MarkScanned labels a message the gate rejected.
func (a *Actions) MarkScanned(ctx context.Context, messageID string) error {
	return a.mb.ApplyLabels(ctx, messageID, []string{a.id(a.labels.Scanned)}, a.done())
}
