package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/paths"
)

var logsTail int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the warden log",
	Long:  "Print the tail of the warden log file, including captured worker output.",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := paths.LogPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("🛡️ no log file yet")
			return nil
		}
		return fmt.Errorf("read log: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if logsTail > 0 && len(lines) > logsTail {
		lines = lines[len(lines)-logsTail:]
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}

func init() {
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of trailing lines to show (0 for all)")
	rootCmd.AddCommand(logsCmd)
}
