// Package mail adapts Gmail to the types.Mailbox port and applies the
// agent's label transitions.
package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"replydesk/internal/logging"
	"replydesk/internal/types"
)

// GmailOptions configures the Gmail adapter.
type GmailOptions struct {
	CredentialsFile string // OAuth client JSON
	TokenFile       string // authorized user token JSON
	User            string // defaults to "me"
	Logger          *zap.Logger
}

// GmailMailbox implements types.Mailbox over the Gmail v1 API.
type GmailMailbox struct {
	svc    *gmail.Service
	user   string
	logger *zap.Logger
}

var _ types.Mailbox = (*GmailMailbox)(nil)

// NewGmailMailbox authenticates with an existing token file. Consent flows
// are out of scope: a missing token is an error.
func NewGmailMailbox(ctx context.Context, opts GmailOptions) (*GmailMailbox, error) {
	creds, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("credentials.json not found at %s: %w", opts.CredentialsFile, err)
	}
	oauthCfg, err := google.ConfigFromJSON(creds, gmail.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	tok, err := loadToken(opts.TokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGmailMailboxFromService(svc, opts.User, opts.Logger), nil
}

// NewGmailMailboxFromService wraps an already configured service.
func NewGmailMailboxFromService(svc *gmail.Service, user string, logger *zap.Logger) *GmailMailbox {
	if user == "" {
		user = "me"
	}
	return &GmailMailbox{svc: svc, user: user, logger: logging.For(logger, logging.CategoryMail)}
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("token file not found at %s: %w", path, err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	return tok, nil
}

// ListCandidates lists every message matching query, following pages.
func (m *GmailMailbox) ListCandidates(ctx context.Context, query string) ([]types.MessageRef, error) {
	timer := logging.StartTimer(m.logger, "ListCandidates")
	defer timer.Stop()

	var refs []types.MessageRef
	err := m.svc.Users.Messages.List(m.user).Q(query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, msg := range resp.Messages {
			refs = append(refs, types.MessageRef{ID: msg.Id, ThreadID: msg.ThreadId})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	m.logger.Debug("listed candidates", zap.String("query", query), zap.Int("count", len(refs)))
	return refs, nil
}

// FetchFull loads a message in full format and extracts its text.
func (m *GmailMailbox) FetchFull(ctx context.Context, id string) (types.InboundMessage, error) {
	msg, err := m.svc.Users.Messages.Get(m.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return types.InboundMessage{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return ToInbound(msg), nil
}

// SendReply sends a plain-text message.
func (m *GmailMailbox) SendReply(ctx context.Context, to, subject, body string) error {
	raw := ComposeRaw(to, subject, body)
	if _, err := m.svc.Users.Messages.Send(m.user, &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// ApplyLabels adds and removes label IDs on a message.
func (m *GmailMailbox) ApplyLabels(ctx context.Context, id string, add, remove []string) error {
	req := &gmail.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	if _, err := m.svc.Users.Messages.Modify(m.user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify labels on %s: %w", id, err)
	}
	return nil
}

// EnsureLabels creates missing labels and returns name -> ID.
func (m *GmailMailbox) EnsureLabels(ctx context.Context, names []string) (map[string]string, error) {
	resp, err := m.svc.Users.Labels.List(m.user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	existing := make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		existing[l.Name] = l.Id
	}

	out := make(map[string]string, len(names))
	for _, name := range names {
		if id, ok := existing[name]; ok {
			out[name] = id
			continue
		}
		created, err := m.svc.Users.Labels.Create(m.user, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("create label %s: %w", name, err)
		}
		existing[name] = created.Id
		out[name] = created.Id
		m.logger.Info("created label", zap.String("name", name), zap.String("id", created.Id))
	}
	return out, nil
}
