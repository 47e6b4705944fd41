package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replydesk/internal/logging"
	"replydesk/internal/pipeline"
	"replydesk/internal/system"
)

// serveCmd runs the poll loop until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the mailbox and answer matching messages until interrupted",
	Long: `Boots the runtime, then polls on the configured interval. On SIGINT or
SIGTERM the current batch finishes before the process exits.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// pollCmd runs exactly one cycle.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single poll cycle and print a summary",
	Args:  cobra.NoArgs,
	RunE:  runPoll,
}

func bootRuntime(ctx context.Context) (*system.Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return system.Boot(ctx, cfg, logger, system.Components{})
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start policy watcher: %w", err)
	}

	err = rt.Poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}

func runPoll(cmd *cobra.Command, args []string) error {
	rt, err := bootRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.Poller.PollOnce(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("poll complete",
		zap.String("cycle_id", report.CycleID),
		zap.Int("candidates", report.Candidates),
		zap.Duration("elapsed", report.Elapsed))
	fmt.Fprint(cmd.OutOrStdout(), summarize(report))
	return nil
}

// summarize renders one line per decision kind, in a fixed order.
func summarize(report pipeline.CycleReport) string {
	counts := report.Counts()
	out := fmt.Sprintf("cycle %s: %d candidate(s)\n", report.CycleID, report.Candidates)
	for _, d := range []logging.Decision{
		logging.DecisionReply,
		logging.DecisionEscalate,
		logging.DecisionSkip,
		logging.DecisionError,
	} {
		if n := counts[d]; n > 0 {
			out += fmt.Sprintf("  %-9s %d\n", d, n)
		}
	}
	return out
}
