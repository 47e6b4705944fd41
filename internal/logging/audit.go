package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// DECISION VOCABULARY
// =============================================================================

// Decision is the outcome recorded by one audit entry.
type Decision string

const (
	DecisionRetrieve  Decision = "RETRIEVE"
	DecisionDraft     Decision = "DRAFT"
	DecisionValidated Decision = "VALIDATED"
	DecisionRewrite   Decision = "REWRITE"
	DecisionReply     Decision = "REPLY"
	DecisionEscalate  Decision = "ESCALATE"
	DecisionSkip      Decision = "SKIP"
	DecisionError     Decision = "ERROR"
)

// DecisionEntry is one line of the append-only decision log.
// State names the step whose execution produced the entry.
type DecisionEntry struct {
	MessageID       string   `json:"message_id"`
	FromAddr        string   `json:"from_addr"`
	Subject         string   `json:"subject"`
	State           string   `json:"state"`
	Decision        Decision `json:"decision"`
	Reason          string   `json:"reason"`
	Timestamp       float64  `json:"ts"` // Unix seconds
	CycleID         string   `json:"cycle_id,omitempty"`
	RunID           string   `json:"run_id,omitempty"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	ContextPreview  []string `json:"context_preview,omitempty"`
	DraftPreview    string   `json:"draft_preview,omitempty"`
	PIIRequest      []string `json:"pii_request,omitempty"`
	PIIDraft        []string `json:"pii_draft,omitempty"`
	RewriteCount    int      `json:"rewrite_count,omitempty"`
	Detail          string   `json:"detail,omitempty"`
}

// Recorder accepts decision entries. Implementations must be safe for
// concurrent use; the core writes and never reads.
type Recorder interface {
	Record(entry DecisionEntry) error
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditLog writes one JSON object per line to an append-only destination.
type AuditLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
	echo   *ConsoleEcho
	logger *zap.Logger
}

// AuditOption customizes an AuditLog.
type AuditOption func(*AuditLog)

// WithEcho mirrors every entry as a coloured line on w.
func WithEcho(w io.Writer) AuditOption {
	return func(a *AuditLog) { a.echo = NewConsoleEcho(w) }
}

// WithLogger also emits each entry as a debug-level zap record.
func WithLogger(l *zap.Logger) AuditOption {
	return func(a *AuditLog) { a.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) AuditOption {
	return func(a *AuditLog) { a.now = now }
}

// OpenAuditLog opens (or creates) the JSONL file at path in append mode.
func OpenAuditLog(path string, opts ...AuditOption) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	a := NewAuditLog(file, opts...)
	a.closer = file
	return a, nil
}

// NewAuditLog wraps an arbitrary writer.
func NewAuditLog(w io.Writer, opts ...AuditOption) *AuditLog {
	a := &AuditLog{w: w, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record appends one entry. A zero timestamp is filled from the clock.
func (a *AuditLog) Record(entry DecisionEntry) error {
	if entry.Timestamp == 0 {
		entry.Timestamp = float64(a.now().UnixNano()) / float64(time.Second)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	_, err = a.w.Write(data)
	if err == nil && a.echo != nil {
		a.echo.Print(entry)
	}
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	a.logger.Debug("decision recorded",
		zap.String("message_id", entry.MessageID),
		zap.String("state", entry.State),
		zap.String("decision", string(entry.Decision)),
		zap.String("reason", entry.Reason))
	return nil
}

// Close closes the underlying file, if any.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}
