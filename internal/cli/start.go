package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/config"
	"github.com/tessro/warden/internal/logging"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/supervisor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the worker",
	Long:  "Start the worker process and return. The worker keeps running after warden exits; use status, call, and stop to interact with it.",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cleanup, err := logging.Setup(paths.LogPath(), logging.ParseLevel("info"))
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanup()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Detach: warden exits after the spawn, so the worker's output must go
	// to a file rather than pipes held by this process.
	scfg := cfg.SupervisorConfig()
	scfg.Detach = true

	sup := supervisor.New(scfg)
	snap, err := sup.Start(cmd.Context())
	if err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	fmt.Printf("🛡️ worker started (pid %d, port %d, output %s)\n", snap.PID, snap.Port, scfg.WorkerLogPath)
	if snap.Warning != "" {
		fmt.Printf("🛡️ warning: %s\n", snap.Warning)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(startCmd)
}
