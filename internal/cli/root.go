// Package cli implements the warden command-line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/paths"
)

// wardenDir is the global --warden-dir flag value.
var wardenDir string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Worker process supervisor",
	Long:  "warden supervises a long-running worker process and maintains an authenticated control session with it.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set WARDEN_DIR if --warden-dir is provided, so all path
		// helpers use the override.
		if wardenDir != "" {
			if err := os.Setenv(paths.EnvWardenDir, wardenDir); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&wardenDir, "warden-dir", "", "base directory for warden data (overrides ~/.warden)")
}

func Execute() error {
	return rootCmd.Execute()
}
