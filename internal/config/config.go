// Package config loads replydesk configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all replydesk configuration.
type Config struct {
	// LLM configuration (generation + embeddings)
	LLM LLMConfig `yaml:"llm"`

	// Rate-limit backoff for external model calls
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Poll cycle settings
	Poll PollConfig `yaml:"poll"`

	// Mailbox label names
	Labels LabelsConfig `yaml:"labels"`

	// Reply workflow behaviour
	Workflow WorkflowConfig `yaml:"workflow"`

	// File locations
	Paths PathsConfig `yaml:"paths"`

	// Gmail adapter
	Gmail GmailConfig `yaml:"gmail"`

	// Retrieval index lifecycle
	Index IndexConfig `yaml:"index"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PollConfig configures the poll loop and batch fan-out.
type PollConfig struct {
	Interval       string `yaml:"interval"`
	Query          string `yaml:"query"` // extra provider query appended to the label filter
	MaxConcurrency int    `yaml:"max_concurrency"`
}

// LabelsConfig names the mailbox labels the agent manages.
type LabelsConfig struct {
	Inbound   string `yaml:"inbound"`
	Processed string `yaml:"processed"`
	Review    string `yaml:"review"`
	Scanned   string `yaml:"scanned"`
}

// Names returns all managed label names in a stable order.
func (l LabelsConfig) Names() []string {
	return []string{l.Inbound, l.Processed, l.Review, l.Scanned}
}

// NoMatchPolicy decides what happens to a message the gate rejects.
type NoMatchPolicy string

const (
	NoMatchSkip     NoMatchPolicy = "skip"
	NoMatchEscalate NoMatchPolicy = "escalate"
)

// WorkflowConfig configures the reply state machine.
type WorkflowConfig struct {
	MaxRewrites   int           `yaml:"max_rewrites"`
	RetrievalK    int           `yaml:"retrieval_k"`
	NoMatchPolicy NoMatchPolicy `yaml:"no_match_policy"`
	Signature     string        `yaml:"signature"`
}

// PathsConfig holds on-disk locations.
type PathsConfig struct {
	PolicyMD     string `yaml:"policy_md"`
	KeywordsJSON string `yaml:"keywords_json"`
	IndexDB      string `yaml:"index_db"`
	LogsPath     string `yaml:"logs_path"`
}

// GmailConfig configures the Gmail mailbox adapter.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	User            string `yaml:"user"`
}

// IndexConfig configures index reuse and reload.
type IndexConfig struct {
	// VerifyCorpusHash rebuilds a persisted index whose corpus hash differs
	// from the current policy file. When false, reuse is presence-only.
	VerifyCorpusHash bool `yaml:"verify_corpus_hash"`

	// WatchPolicy rebuilds the index when the policy file changes.
	WatchPolicy bool `yaml:"watch_policy"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			GenerationModel: "gemini-2.5-flash",
			EmbeddingModel:  "gemini-embedding-001",
			EmbeddingDims:   768,
			EmbedBatchSize:  100,
			EmbedBatchDelay: "1s",
			Timeout:         "120s",
		},

		RateLimit: RateLimitConfig{
			Cooldown:    "65s",
			Strategy:    BackoffFixed,
			MaxCooldown: "10m",
		},

		Poll: PollConfig{
			Interval:       "60s",
			MaxConcurrency: 4,
		},

		Labels: LabelsConfig{
			Inbound:   "agent_inbox",
			Processed: "processed_by_agent",
			Review:    "needs_human_review",
			Scanned:   "scanned_by_agent",
		},

		Workflow: WorkflowConfig{
			MaxRewrites:   2,
			RetrievalK:    4,
			NoMatchPolicy: NoMatchSkip,
			Signature:     "Sincerely,\nCustomer Support",
		},

		Paths: PathsConfig{
			PolicyMD:     "data/policy.md",
			KeywordsJSON: "data/keywords.json",
			IndexDB:      "data/policy_index.db",
			LogsPath:     "data/logs.jsonl",
		},

		Gmail: GmailConfig{
			CredentialsFile: "data/credentials.json",
			TokenFile:       "data/token.json",
			User:            "me",
		},

		Index: IndexConfig{
			VerifyCorpusHash: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		// Bare integers are seconds, as in the original deployment env files
		if _, err := strconv.Atoi(v); err == nil {
			v += "s"
		}
		c.Poll.Interval = v
	}
	if v := os.Getenv("GMAIL_QUERY"); v != "" {
		c.Poll.Query = strings.TrimSpace(v)
	}
	if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Poll.MaxConcurrency = max(1, n)
		}
	}

	if v := os.Getenv("ESCALATE_ON_NOMATCH"); v != "" {
		if strings.EqualFold(v, "true") {
			c.Workflow.NoMatchPolicy = NoMatchEscalate
		} else {
			c.Workflow.NoMatchPolicy = NoMatchSkip
		}
	}

	if v := os.Getenv("LABEL_IN"); v != "" {
		c.Labels.Inbound = v
	}
	if v := os.Getenv("LABEL_OUT"); v != "" {
		c.Labels.Processed = v
	}
	if v := os.Getenv("LABEL_REVIEW"); v != "" {
		c.Labels.Review = v
	}
	if v := os.Getenv("LABEL_SCANNED"); v != "" {
		c.Labels.Scanned = v
	}

	if v := os.Getenv("POLICY_MD"); v != "" {
		c.Paths.PolicyMD = v
	}
	if v := os.Getenv("KEYWORDS_JSON"); v != "" {
		c.Paths.KeywordsJSON = v
	}
	if v := os.Getenv("INDEX_DB"); v != "" {
		c.Paths.IndexDB = v
	}
	if v := os.Getenv("LOGS_PATH"); v != "" {
		c.Paths.LogsPath = v
	}

	if v := os.Getenv("GMAIL_CREDENTIALS"); v != "" {
		c.Gmail.CredentialsFile = v
	}
	if v := os.Getenv("GMAIL_TOKEN"); v != "" {
		c.Gmail.TokenFile = v
	}
}

// GetPollInterval returns the poll interval as a duration.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Poll.Interval, 60*time.Second)
}

// BuildQuery returns the provider query selecting unread inbound messages.
func (c *Config) BuildQuery() string {
	q := fmt.Sprintf("label:%s is:unread %s", c.Labels.Inbound, c.Poll.Query)
	return strings.Join(strings.Fields(q), " ")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: LLM API key not configured (set GEMINI_API_KEY)", ErrInvalid)
	}
	if err := c.ValidateLimits(); err != nil {
		return err
	}
	switch c.Workflow.NoMatchPolicy {
	case NoMatchSkip, NoMatchEscalate:
	default:
		return fmt.Errorf("%w: unknown no_match_policy %q (valid: skip, escalate)", ErrInvalid, c.Workflow.NoMatchPolicy)
	}
	switch c.RateLimit.Strategy {
	case BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("%w: unknown rate_limit.strategy %q (valid: fixed, exponential)", ErrInvalid, c.RateLimit.Strategy)
	}
	for _, name := range c.Labels.Names() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: label names must not be empty", ErrInvalid)
		}
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
