package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replydesk/internal/config"
	"replydesk/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiKey     string

	// Set up by PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "replydesk",
	Short: "replydesk - policy-grounded customer email replies",
	Long: `replydesk watches a support mailbox, drafts replies grounded in a policy
document, checks them with a judge model and a PII scanner, and either sends
them or escalates to a human.

Every decision is appended to a JSONL audit log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if apiKey != "" {
			loaded.LLM.APIKey = apiKey
		}
		cfg = loaded

		opts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
		if verbose {
			opts.Level = "debug"
		}
		logger, err = logging.New(opts)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "replydesk.yaml", "Config file (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")

	indexBuildCmd.Flags().BoolVar(&forceRebuild, "force", false, "Rebuild even when the stored index is current")
	indexQueryCmd.Flags().IntVarP(&queryK, "top", "k", 4, "Number of chunks to return")
	indexQueryCmd.Flags().BoolVar(&plainOutput, "plain", false, "Print raw markdown instead of rendering it")
	initCmd.Flags().BoolVar(&overwriteConfig, "force", false, "Overwrite an existing config file")
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexQueryCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(gateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
