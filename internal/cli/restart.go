package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/config"
	"github.com/tessro/warden/internal/logging"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/supervisor"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the worker",
	Long:  "Stop the tracked worker process if one is running, then start a fresh one.",
	Args:  cobra.NoArgs,
	RunE:  runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	cleanup, err := logging.Setup(paths.LogPath(), logging.ParseLevel("info"))
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanup()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The new worker outlives this process, so spawn it detached.
	scfg := cfg.SupervisorConfig()
	scfg.Detach = true

	sup := supervisor.New(scfg)
	snap, err := sup.Restart(cmd.Context())
	if err != nil {
		return fmt.Errorf("restart worker: %w", err)
	}

	fmt.Printf("🛡️ worker restarted (pid %d, port %d)\n", snap.PID, snap.Port)
	if snap.Warning != "" {
		fmt.Printf("🛡️ warning: %s\n", snap.Warning)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
