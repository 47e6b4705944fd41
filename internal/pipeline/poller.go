package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"replydesk/internal/logging"
	"replydesk/internal/types"
)

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	CycleID    string
	Candidates int
	Results    []Result
	Elapsed    time.Duration
}

// Counts tallies results by decision.
func (r CycleReport) Counts() map[logging.Decision]int {
	out := make(map[logging.Decision]int)
	for _, res := range r.Results {
		out[res.Decision]++
	}
	return out
}

// Poller lists candidates on an interval and hands them to the Manager.
type Poller struct {
	mailbox  types.Mailbox
	manager  *Manager
	audit    logging.Recorder
	query    string
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller for query.
func NewPoller(mb types.Mailbox, manager *Manager, audit logging.Recorder, query string, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{
		mailbox:  mb,
		manager:  manager,
		audit:    audit,
		query:    query,
		interval: interval,
		logger:   logging.For(logger, logging.CategoryPipeline),
	}
}

// PollOnce runs one cycle. Once candidates are listed the batch runs to
// completion even if ctx is cancelled.
func (p *Poller) PollOnce(ctx context.Context) (CycleReport, error) {
	report := CycleReport{CycleID: uuid.NewString()}
	start := time.Now()

	p.logger.Debug("polling", zap.String("cycle_id", report.CycleID), zap.String("query", p.query))
	refs, err := p.mailbox.ListCandidates(ctx, p.query)
	if err != nil {
		err = fmt.Errorf("list candidates: %w", err)
		if aerr := p.audit.Record(logging.DecisionEntry{
			State:    ErrorState,
			Decision: logging.DecisionError,
			Reason:   "Poll failed",
			CycleID:  report.CycleID,
			Detail:   err.Error(),
		}); aerr != nil {
			p.logger.Error("audit write failed", zap.Error(aerr))
		}
		p.manager.metrics.RecordCycle(ctx, true)
		return report, err
	}

	report.Candidates = len(refs)
	if len(refs) > 0 {
		p.logger.Info("found candidates", zap.String("cycle_id", report.CycleID), zap.Int("count", len(refs)))
		report.Results = p.manager.ProcessBatch(context.WithoutCancel(ctx), report.CycleID, refs)
	}
	report.Elapsed = time.Since(start)
	p.manager.metrics.RecordCycle(ctx, false)
	return report, nil
}

// Run polls until ctx is cancelled. Cancellation is observed between
// cycles; a cycle error is logged and the loop continues.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
	for {
		if _, err := p.PollOnce(ctx); err != nil {
			p.logger.Error("poll cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}
