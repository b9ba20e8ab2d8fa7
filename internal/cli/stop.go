package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/config"
	"github.com/tessro/warden/internal/logging"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/supervisor"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the worker",
	Long:  "Stop the tracked worker process, escalating to SIGKILL if it ignores the graceful signal.",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	cleanup, err := logging.Setup(paths.LogPath(), logging.ParseLevel("info"))
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanup()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sup := supervisor.New(cfg.SupervisorConfig())
	snap := sup.Stop(cmd.Context())
	if snap.Warning != "" {
		fmt.Printf("🛡️ warning: %s\n", snap.Warning)
	}
	fmt.Println("🛡️ worker stopped")
	return nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
