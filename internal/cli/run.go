package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/config"
	"github.com/tessro/warden/internal/logging"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/session"
	"github.com/tessro/warden/internal/supervisor"
)

var runLogLevel string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Supervise the worker in the foreground",
	Long:  "Start the worker, open a control session, and stream its events until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	// Foreground mode logs to the file and to stderr.
	cleanup, err := logging.SetupMulti(paths.LogPath(), os.Stderr, logging.ParseLevel(runLogLevel))
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer cleanup()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sup := supervisor.New(cfg.SupervisorConfig())
	sup.OnStateChange(func(c supervisor.StateChange) {
		fmt.Printf("🛡️ worker %s\n", c.New)
	})

	snap, err := sup.Start(cmd.Context())
	if err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	fmt.Printf("🛡️ worker running (pid %d, port %d)\n", snap.PID, snap.Port)
	if snap.Warning != "" {
		fmt.Printf("🛡️ warning: %s\n", snap.Warning)
	}

	client := session.New(cfg.SessionConfig())
	client.OnStateChange(func(st session.State) {
		fmt.Printf("🛡️ session %s\n", st)
	})
	client.On(session.Wildcard, func(e session.Event) {
		fmt.Printf("🛡️ event %s %s\n", e.Name, string(e.Payload))
	})
	client.Connect(snap.Addr(), snap.Token)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	fmt.Println("🛡️ shutting down")
	client.Disconnect()
	stopped := sup.Stop(context.Background())
	if stopped.Warning != "" {
		fmt.Printf("🛡️ warning: %s\n", stopped.Warning)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
}
