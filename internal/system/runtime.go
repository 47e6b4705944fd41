// Package system boots the replydesk runtime: every collaborator is built
// once here and passed explicitly to the components that use it.
package system

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"replydesk/internal/config"
	"replydesk/internal/embedding"
	"replydesk/internal/gate"
	"replydesk/internal/logging"
	"replydesk/internal/mail"
	"replydesk/internal/perception"
	"replydesk/internal/pipeline"
	"replydesk/internal/retrieval"
	"replydesk/internal/retry"
	"replydesk/internal/store"
	"replydesk/internal/types"
	"replydesk/internal/verification"
	"replydesk/internal/workflow"
)

// Components overrides collaborators that would otherwise be built from
// configuration. Nil fields are built.
type Components struct {
	Engine  embedding.Engine
	LLM     types.LLMClient
	Mailbox types.Mailbox
	Audit   io.Writer // replaces the audit file
	Echo    io.Writer // console echo target when logging.console_echo is set
}

// Runtime is the booted dependency graph.
type Runtime struct {
	Config  *config.Config
	Logger  *zap.Logger
	Index   *IndexRuntime
	Gate    *gate.Gate
	Oracle  *verification.Oracle
	LLM     types.LLMClient
	Mailbox types.Mailbox
	Actions *mail.Actions
	Audit   *logging.AuditLog
	Engine  *workflow.Engine
	Manager *pipeline.Manager
	Poller  *pipeline.Poller
	Watcher *retrieval.PolicyWatcher
}

// IndexRuntime is the retrieval half of the runtime, usable on its own by
// index maintenance commands.
type IndexRuntime struct {
	Embedder embedding.Engine
	Store    *store.IndexStore
	Loader   *retrieval.Loader
	Holder   *retrieval.Holder
}

// RetryPolicy builds the rate-limit policy from configuration.
func RetryPolicy(cfg *config.Config, logger *zap.Logger) retry.Policy {
	return retry.Policy{
		Cooldown:    cfg.GetCooldown(),
		Strategy:    retry.Strategy(cfg.RateLimit.Strategy),
		MaxCooldown: cfg.GetMaxCooldown(),
		Logger:      logger,
	}
}

// NewGenAIClient creates the shared Gemini API client.
func NewGenAIClient(ctx context.Context, cfg *config.Config) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// NewEmbedder builds the embedding engine over client.
func NewEmbedder(client *genai.Client, cfg *config.Config, logger *zap.Logger) (embedding.Engine, error) {
	engine, err := embedding.NewGenAIEngine(client, embedding.GenAIOptions{
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.LLM.EmbeddingDims,
		BatchSize:  cfg.LLM.EmbedBatchSize,
		BatchDelay: cfg.GetEmbedBatchDelay(),
		Retry:      RetryPolicy(cfg, logging.For(logger, logging.CategoryEmbedding)),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// OpenIndex opens the index store and loads or builds the policy index.
func OpenIndex(ctx context.Context, cfg *config.Config, engine embedding.Engine, force bool, logger *zap.Logger) (*IndexRuntime, error) {
	st, err := store.NewIndexStore(cfg.Paths.IndexDB)
	if err != nil {
		return nil, fmt.Errorf("open index store: %w", err)
	}
	loader := retrieval.NewLoader(engine, st, retrieval.LoadOptions{
		CorpusPath: cfg.Paths.PolicyMD,
		VerifyHash: cfg.Index.VerifyCorpusHash,
		Force:      force,
	}, logger)

	ix, rebuilt, err := loader.Load(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	logging.For(logger, logging.CategoryBoot).Info("policy index ready",
		zap.Int("chunks", ix.Len()),
		zap.Bool("rebuilt", rebuilt),
		zap.String("store", st.Path()))

	return &IndexRuntime{
		Embedder: engine,
		Store:    st,
		Loader:   loader,
		Holder:   retrieval.NewHolder(ix),
	}, nil
}

// Boot builds the full runtime from configuration.
func Boot(ctx context.Context, cfg *config.Config, logger *zap.Logger, comps Components) (rt *Runtime, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bootLog := logging.For(logger, logging.CategoryBoot)
	timer := logging.StartTimer(bootLog, "Boot")
	defer timer.Stop()

	rt = &Runtime{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if comps.Engine == nil || comps.LLM == nil {
		client, err := NewGenAIClient(ctx, cfg)
		if err != nil {
			return rt, err
		}
		if comps.Engine == nil {
			if comps.Engine, err = NewEmbedder(client, cfg, logger); err != nil {
				return rt, err
			}
		}
		if comps.LLM == nil {
			gcfg := perception.DefaultGeminiConfig()
			gcfg.Model = cfg.LLM.GenerationModel
			gcfg.Timeout = cfg.GetLLMTimeout()
			gcfg.Retry = RetryPolicy(cfg, logging.For(logger, logging.CategoryAPI))
			gcfg.Logger = logger
			if comps.LLM, err = perception.NewGeminiClient(client, gcfg); err != nil {
				return rt, err
			}
		}
	}
	rt.LLM = comps.LLM

	// 1. Keywords and index
	kw, err := gate.LoadKeywords(cfg.Paths.KeywordsJSON)
	if err != nil {
		return rt, err
	}
	rt.Gate = gate.New(kw)
	bootLog.Info("keywords loaded", zap.Int("count", kw.Len()))

	if rt.Index, err = OpenIndex(ctx, cfg, comps.Engine, false, logger); err != nil {
		return rt, err
	}
	if cfg.Index.WatchPolicy {
		if rt.Watcher, err = retrieval.NewPolicyWatcher(rt.Index.Loader, rt.Index.Holder, logger); err != nil {
			return rt, fmt.Errorf("create policy watcher: %w", err)
		}
	}

	// 2. Mailbox and labels
	if comps.Mailbox == nil {
		comps.Mailbox, err = mail.NewGmailMailbox(ctx, mail.GmailOptions{
			CredentialsFile: cfg.Gmail.CredentialsFile,
			TokenFile:       cfg.Gmail.TokenFile,
			User:            cfg.Gmail.User,
			Logger:          logger,
		})
		if err != nil {
			return rt, err
		}
	}
	rt.Mailbox = comps.Mailbox
	labels := mail.Labels{
		Inbound:   cfg.Labels.Inbound,
		Processed: cfg.Labels.Processed,
		Review:    cfg.Labels.Review,
		Scanned:   cfg.Labels.Scanned,
	}
	if rt.Actions, err = mail.PrepareActions(ctx, rt.Mailbox, labels, logger); err != nil {
		return rt, fmt.Errorf("ensure labels: %w", err)
	}

	// 3. Audit sink
	auditOpts := []logging.AuditOption{logging.WithLogger(logging.For(logger, logging.CategoryAudit))}
	if cfg.Logging.ConsoleEcho {
		echo := comps.Echo
		if echo == nil {
			echo = os.Stdout
		}
		auditOpts = append(auditOpts, logging.WithEcho(echo))
	}
	if comps.Audit != nil {
		rt.Audit = logging.NewAuditLog(comps.Audit, auditOpts...)
	} else if rt.Audit, err = logging.OpenAuditLog(cfg.Paths.LogsPath, auditOpts...); err != nil {
		return rt, err
	}

	// 4. Workflow and pipeline
	rt.Oracle = verification.NewOracle(rt.LLM, logger)
	rt.Engine = workflow.New(workflow.Deps{
		Retriever: rt.Index.Holder,
		LLM:       rt.LLM,
		Validator: rt.Oracle,
		Responder: rt.Actions,
		Audit:     rt.Audit,
	}, workflow.Config{
		MaxRewrites: cfg.Workflow.MaxRewrites,
		RetrievalK:  cfg.Workflow.RetrievalK,
		Signature:   cfg.Workflow.Signature,
	}, logger)

	rt.Manager = pipeline.NewManager(rt.Mailbox, rt.Gate, rt.Engine, rt.Actions, rt.Audit, pipeline.ManagerConfig{
		MaxConcurrency:  cfg.Poll.MaxConcurrency,
		EscalateNoMatch: cfg.Workflow.NoMatchPolicy == config.NoMatchEscalate,
	}, logger)
	rt.Poller = pipeline.NewPoller(rt.Mailbox, rt.Manager, rt.Audit, cfg.BuildQuery(), cfg.GetPollInterval(), logger)

	bootLog.Info("runtime ready",
		zap.String("query", cfg.BuildQuery()),
		zap.Int("max_concurrency", cfg.Poll.MaxConcurrency),
		zap.Bool("watch_policy", rt.Watcher != nil))
	return rt, nil
}

// StartWatcher starts the policy watcher when one is configured.
func (rt *Runtime) StartWatcher(ctx context.Context) error {
	if rt.Watcher == nil {
		return nil
	}
	return rt.Watcher.Start(ctx)
}
