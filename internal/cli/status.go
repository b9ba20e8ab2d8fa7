package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/lockfile"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/supervisor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker status",
	Long:  "Display whether a worker is running, along with its pid, control port, and uptime.",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	controlPath, err := paths.ControlFilePath()
	if err != nil {
		return err
	}

	info, err := supervisor.ReadControlFile(controlPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Fall back to the lock file alone; a crash may have left
			// one behind without a control file.
			if pid, live := lockfile.ReadLive(paths.LockPath()); live {
				fmt.Printf("🛡️ worker running (pid %d, control endpoint unknown)\n", pid)
				return nil
			}
			lockfile.CleanStale(paths.LockPath())
			fmt.Println("🛡️ worker is not running")
			return nil
		}
		return fmt.Errorf("read control file: %w", err)
	}

	if !lockfile.IsAlive(info.PID) {
		lockfile.CleanStale(paths.LockPath())
		os.Remove(controlPath)
		fmt.Printf("🛡️ worker is not running (stale control file, pid %d)\n", info.PID)
		return nil
	}

	uptime := time.Since(info.StartedAt).Truncate(time.Second)
	fmt.Printf("🛡️ worker running (pid %d, port %d, uptime %s)\n", info.PID, info.Port, uptime)
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
