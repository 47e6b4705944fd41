// Package pipeline fans candidate messages out to reply workflow runs and
// drives the poll cycle.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"replydesk/internal/logging"
	"replydesk/internal/types"
	"replydesk/internal/workflow"
)

// GateState labels audit entries produced by the subject gate.
const GateState = "GATE"

// ErrorState labels audit entries for runs that failed.
const ErrorState = "ERROR"

// NoMatchReason is recorded when the gate rejects a subject.
const NoMatchReason = "No policy keyword match in subject"

// Runner executes one reply workflow run.
type Runner interface {
	Run(ctx context.Context, rs workflow.RunState) (workflow.RunState, error)
}

// Admitter decides whether a subject enters the workflow.
type Admitter interface {
	Admit(subject string) []string
}

// Triage handles messages the gate rejects.
type Triage interface {
	Escalate(ctx context.Context, messageID string) error
	MarkScanned(ctx context.Context, messageID string) error
}

// ManagerConfig configures batch processing.
type ManagerConfig struct {
	MaxConcurrency  int  // in-flight messages per batch
	EscalateNoMatch bool // escalate instead of marking scanned
	Meter           metric.Meter // nil uses the global meter
}

// Result is the outcome of one message.
type Result struct {
	MessageID string
	RunID     string
	Decision  logging.Decision
	Reason    string
	Err       error
}

// Manager processes a batch of candidate messages with bounded concurrency.
// A failing message never affects its siblings.
type Manager struct {
	mailbox types.Mailbox
	gate    Admitter
	runner  Runner
	triage  Triage
	audit   logging.Recorder
	cfg     ManagerConfig
	logger  *zap.Logger
	metrics *Metrics
	newID   func() string
}

// NewManager creates a batch manager.
func NewManager(mb types.Mailbox, gate Admitter, runner Runner, triage Triage, audit logging.Recorder, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	logger = logging.For(logger, logging.CategoryPipeline)
	metrics, err := NewMetrics(cfg.Meter)
	if err != nil {
		logger.Warn("metrics disabled", zap.Error(err))
	}
	return &Manager{
		mailbox: mb,
		gate:    gate,
		runner:  runner,
		triage:  triage,
		audit:   audit,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		newID:   uuid.NewString,
	}
}

// ProcessBatch runs every ref to completion and returns one result per ref
// in input order. It waits for all runs; at most MaxConcurrency are in
// flight at any moment.
func (m *Manager) ProcessBatch(ctx context.Context, cycleID string, refs []types.MessageRef) []Result {
	results := make([]Result, len(refs))
	if len(refs) == 0 {
		return results
	}

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(m.cfg.MaxConcurrency)
	for i, ref := range refs {
		g.Go(func() error {
			began := time.Now()
			results[i] = m.processOne(ctx, cycleID, ref)
			m.metrics.RecordMessage(ctx, results[i].Decision, time.Since(began))
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	m.logger.Info("batch complete",
		zap.String("cycle_id", cycleID),
		zap.Int("messages", len(refs)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

func (m *Manager) processOne(ctx context.Context, cycleID string, ref types.MessageRef) Result {
	runID := m.newID()
	res := Result{MessageID: ref.ID, RunID: runID}

	msg, err := m.mailbox.FetchFull(ctx, ref.ID)
	if err != nil {
		return m.fail(res, types.InboundMessage{ID: ref.ID}, cycleID, fmt.Errorf("fetch: %w", err))
	}

	matched := m.gate.Admit(msg.Subject)
	if len(matched) == 0 {
		return m.noMatch(ctx, res, msg, cycleID)
	}

	rs := workflow.NewRunState(msg, matched)
	rs.CycleID = cycleID
	rs.RunID = runID
	final, err := m.runner.Run(ctx, rs)
	if err != nil {
		return m.fail(res, msg, cycleID, err)
	}
	res.Decision = final.Decision
	res.Reason = final.Reason
	return res
}

func (m *Manager) noMatch(ctx context.Context, res Result, msg types.InboundMessage, cycleID string) Result {
	res.Decision = logging.DecisionSkip
	if m.cfg.EscalateNoMatch {
		res.Decision = logging.DecisionEscalate
	}
	res.Reason = NoMatchReason

	entry := logging.DecisionEntry{
		MessageID:       msg.ID,
		FromAddr:        msg.FromAddress,
		Subject:         msg.Subject,
		State:           GateState,
		Decision:        res.Decision,
		Reason:          NoMatchReason,
		CycleID:         cycleID,
		RunID:           res.RunID,
		MatchedKeywords: []string{},
	}
	if err := m.audit.Record(entry); err != nil {
		return m.fail(res, msg, cycleID, fmt.Errorf("audit: %w", err))
	}

	// Label changes must not stop half-way once started.
	actx := context.WithoutCancel(ctx)
	var err error
	if m.cfg.EscalateNoMatch {
		err = m.triage.Escalate(actx, msg.ID)
	} else {
		err = m.triage.MarkScanned(actx, msg.ID)
	}
	if err != nil {
		return m.fail(res, msg, cycleID, fmt.Errorf("label no-match: %w", err))
	}
	return res
}

// fail records the ERROR entry for a run. Audit failures here are logged
// only: there is nowhere further to report them.
func (m *Manager) fail(res Result, msg types.InboundMessage, cycleID string, err error) Result {
	res.Err = err
	res.Decision = logging.DecisionError
	res.Reason = err.Error()

	m.logger.Error("message failed",
		zap.String("message_id", msg.ID),
		zap.String("run_id", res.RunID),
		zap.Error(err))

	entry := logging.DecisionEntry{
		MessageID: msg.ID,
		FromAddr:  msg.FromAddress,
		Subject:   msg.Subject,
		State:     ErrorState,
		Decision:  logging.DecisionError,
		Reason:    "Run failed",
		CycleID:   cycleID,
		RunID:     res.RunID,
		Detail:    err.Error(),
	}
	if aerr := m.audit.Record(entry); aerr != nil {
		m.logger.Error("audit write failed", zap.String("message_id", msg.ID), zap.Error(aerr))
	}
	return res
}
