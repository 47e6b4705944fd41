package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"replydesk/internal/gate"
)

// gateCmd probes the subject gate without touching the mailbox or models.
var gateCmd = &cobra.Command{
	Use:   "gate [subject]",
	Short: "Show which policy keywords a subject matches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kw, err := gate.LoadKeywords(cfg.Paths.KeywordsJSON)
		if err != nil {
			return err
		}
		subject := strings.Join(args, " ")
		matched := gate.Admit(subject, kw)
		if len(matched) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no match: %q would be skipped\n", subject)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "admitted: %s\n", strings.Join(matched, ", "))
		return nil
	},
}
