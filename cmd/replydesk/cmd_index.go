package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"replydesk/internal/system"
)

var (
	forceRebuild bool
	queryK       int
	plainOutput  bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and maintain the policy retrieval index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the policy index, reusing the stored one when current",
	Args:  cobra.NoArgs,
	RunE:  runIndexBuild,
}

var indexQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Print the policy chunks closest to the given text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIndexQuery,
}

func openIndex(cmd *cobra.Command, force bool) (*system.IndexRuntime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := system.NewGenAIClient(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	engine, err := system.NewEmbedder(client, cfg, logger)
	if err != nil {
		return nil, err
	}
	return system.OpenIndex(cmd.Context(), cfg, engine, force, logger)
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ir, err := openIndex(cmd, forceRebuild)
	if err != nil {
		return err
	}
	defer ir.Close()

	ix := ir.Holder.Current()
	fmt.Fprintf(cmd.OutOrStdout(), "%d chunk(s) indexed with %s, corpus %s\n",
		ix.Len(), ir.Embedder.Name(), shortHash(ix.CorpusSHA()))
	return nil
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	ir, err := openIndex(cmd, false)
	if err != nil {
		return err
	}
	defer ir.Close()

	text := strings.Join(args, " ")
	chunks, err := ir.Holder.Query(cmd.Context(), text, queryK)
	if err != nil {
		return err
	}
	logger.Debug("index query", zap.String("text", text), zap.Int("results", len(chunks)))

	md := formatChunks(chunks)
	if plainOutput {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("render results: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// formatChunks lays out ranked chunks as one markdown document.
func formatChunks(chunks []string) string {
	if len(chunks) == 0 {
		return "_No policy chunks indexed._\n"
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "**#%d**\n\n%s\n", i+1, c)
	}
	return b.String()
}

func shortHash(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
