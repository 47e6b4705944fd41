package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replydesk/internal/gate"
	"replydesk/internal/logging"
	"replydesk/internal/types"
	"replydesk/internal/workflow"
)

type fakeMailbox struct {
	mu        sync.Mutex
	messages  map[string]types.InboundMessage
	fetchErr  map[string]error
	refs      []types.MessageRef
	listErr   error
	onList    func()
	listCalls int
}

func (f *fakeMailbox) ListCandidates(ctx context.Context, query string) ([]types.MessageRef, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.onList != nil {
		f.onList()
	}
	return f.refs, f.listErr
}

func (f *fakeMailbox) FetchFull(_ context.Context, id string) (types.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fetchErr[id]; err != nil {
		return types.InboundMessage{}, err
	}
	return f.messages[id], nil
}

func (f *fakeMailbox) SendReply(context.Context, string, string, string) error { return nil }

func (f *fakeMailbox) ApplyLabels(context.Context, string, []string, []string) error { return nil }

func (f *fakeMailbox) EnsureLabels(context.Context, []string) (map[string]string, error) {
	return nil, nil
}

type fakeRunner struct {
	delay    time.Duration
	failOn   map[string]error
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	mu       sync.Mutex
	ctxErrs  []error
	states   []workflow.RunState
}

func (f *fakeRunner) Run(ctx context.Context, rs workflow.RunState) (workflow.RunState, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.states = append(f.states, rs)
	f.mu.Unlock()

	if err := f.failOn[rs.Message.ID]; err != nil {
		return rs, err
	}
	rs.Decision = logging.DecisionReply
	rs.Reason = "Reply sent"
	return rs, nil
}

type fakeTriage struct {
	mu        sync.Mutex
	escalated []string
	scanned   []string
}

func (f *fakeTriage) Escalate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escalated = append(f.escalated, id)
	return nil
}

func (f *fakeTriage) MarkScanned(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, id)
	return nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []logging.DecisionEntry
}

func (m *memoryAudit) Record(e logging.DecisionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryAudit) byMessage(id string) []logging.DecisionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []logging.DecisionEntry
	for _, e := range m.entries {
		if e.MessageID == id {
			out = append(out, e)
		}
	}
	return out
}

var keywords = gate.KeywordSet{Phrases: []string{"lost luggage"}, Unigrams: []string{"refund", "baggage"}}

type fixture struct {
	mb      *fakeMailbox
	runner  *fakeRunner
	triage  *fakeTriage
	audit   *memoryAudit
	manager *Manager
}

func newFixture(subjects map[string]string, cfg ManagerConfig) *fixture {
	f := &fixture{
		mb:     &fakeMailbox{messages: make(map[string]types.InboundMessage), fetchErr: make(map[string]error)},
		runner: &fakeRunner{failOn: make(map[string]error)},
		triage: &fakeTriage{},
		audit:  &memoryAudit{},
	}
	for id, subject := range subjects {
		f.mb.messages[id] = types.InboundMessage{ID: id, FromAddress: id + "@example.com", Subject: subject}
	}
	f.manager = NewManager(f.mb, gate.New(keywords), f.runner, f.triage, f.audit, cfg, nil)
	return f
}

func refsFor(ids ...string) []types.MessageRef {
	out := make([]types.MessageRef, len(ids))
	for i, id := range ids {
		out[i] = types.MessageRef{ID: id}
	}
	return out
}

func TestProcessBatch_NoMatchIsSkipped(t *testing.T) {
	f := newFixture(map[string]string{"m1": "Hello there"}, ManagerConfig{MaxConcurrency: 2})

	results := f.manager.ProcessBatch(context.Background(), "cycle-1", refsFor("m1"))

	require.Len(t, results, 1)
	assert.Equal(t, logging.DecisionSkip, results[0].Decision)
	assert.NoError(t, results[0].Err)
	assert.Zero(t, f.runner.calls.Load())
	assert.Equal(t, []string{"m1"}, f.triage.scanned)
	assert.Empty(t, f.triage.escalated)

	entries := f.audit.byMessage("m1")
	require.Len(t, entries, 1)
	assert.Equal(t, GateState, entries[0].State)
	assert.Equal(t, logging.DecisionSkip, entries[0].Decision)
	assert.Equal(t, NoMatchReason, entries[0].Reason)
	assert.Equal(t, "cycle-1", entries[0].CycleID)
	assert.NotEmpty(t, entries[0].RunID)
}

func TestProcessBatch_NoMatchEscalatePolicy(t *testing.T) {
	f := newFixture(map[string]string{"m1": "Hello there"}, ManagerConfig{MaxConcurrency: 1, EscalateNoMatch: true})

	results := f.manager.ProcessBatch(context.Background(), "c", refsFor("m1"))

	assert.Equal(t, logging.DecisionEscalate, results[0].Decision)
	assert.Equal(t, []string{"m1"}, f.triage.escalated)
	assert.Empty(t, f.triage.scanned)
	assert.Equal(t, logging.DecisionEscalate, f.audit.byMessage("m1")[0].Decision)
}

func TestProcessBatch_MatchedSubjectRunsWorkflow(t *testing.T) {
	f := newFixture(map[string]string{"m1": "Refund request"}, ManagerConfig{MaxConcurrency: 1})

	results := f.manager.ProcessBatch(context.Background(), "cycle-9", refsFor("m1"))

	assert.Equal(t, logging.DecisionReply, results[0].Decision)
	require.Len(t, f.runner.states, 1)
	rs := f.runner.states[0]
	assert.Equal(t, []string{"refund"}, rs.MatchedKeywords)
	assert.Equal(t, "cycle-9", rs.CycleID)
	assert.Equal(t, results[0].RunID, rs.RunID)
	assert.Equal(t, "Refund request", rs.Message.Subject)
}

func TestProcessBatch_BoundedConcurrency(t *testing.T) {
	subjects := make(map[string]string)
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%02d", i)
		subjects[ids[i]] = "Baggage allowance"
	}
	f := newFixture(subjects, ManagerConfig{MaxConcurrency: 3})
	f.runner.delay = 20 * time.Millisecond

	results := f.manager.ProcessBatch(context.Background(), "c", refsFor(ids...))

	require.Len(t, results, len(ids))
	for i, r := range results {
		assert.Equal(t, ids[i], r.MessageID)
		assert.Equal(t, logging.DecisionReply, r.Decision)
	}
	assert.Equal(t, int32(12), f.runner.calls.Load())
	assert.LessOrEqual(t, f.runner.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, f.runner.peak.Load(), int32(1))
}

func TestProcessBatch_FailureIsIsolated(t *testing.T) {
	f := newFixture(map[string]string{
		"ok1":  "Refund request",
		"bad":  "Refund again",
		"ok2":  "Lost luggage at airport",
		"gone": "Refund",
	}, ManagerConfig{MaxConcurrency: 4})
	f.runner.failOn["bad"] = errors.New("DRAFT: Error 403")
	f.mb.fetchErr["gone"] = errors.New("404 not found")

	results := f.manager.ProcessBatch(context.Background(), "c", refsFor("ok1", "bad", "ok2", "gone"))

	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, logging.DecisionReply, results[0].Decision)
	assert.Equal(t, logging.DecisionReply, results[2].Decision)

	assert.ErrorContains(t, results[1].Err, "403")
	assert.Equal(t, logging.DecisionError, results[1].Decision)
	bad := f.audit.byMessage("bad")
	require.Len(t, bad, 1)
	assert.Equal(t, ErrorState, bad[0].State)
	assert.Contains(t, bad[0].Detail, "403")
	assert.Equal(t, "Refund again", bad[0].Subject)

	assert.ErrorContains(t, results[3].Err, "fetch")
	gone := f.audit.byMessage("gone")
	require.Len(t, gone, 1)
	assert.Equal(t, logging.DecisionError, gone[0].Decision)
}

func TestProcessBatch_Empty(t *testing.T) {
	f := newFixture(nil, ManagerConfig{})
	assert.Empty(t, f.manager.ProcessBatch(context.Background(), "c", nil))
}
