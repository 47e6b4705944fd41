package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"replydesk/internal/config"
)

var overwriteConfig bool

// initCmd writes a default config file. Values taken from the environment
// or --api-key are left out so secrets never land on disk.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !overwriteConfig {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
		return nil
	},
}
