package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessro/warden/internal/config"
	"github.com/tessro/warden/internal/lockfile"
	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/session"
	"github.com/tessro/warden/internal/supervisor"
)

var callTimeout time.Duration

var callCmd = &cobra.Command{
	Use:   "call <method> [params-json]",
	Short: "Send a request to the worker",
	Long:  "Open a session to the running worker, send a single request, and print the response payload.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]
	var params any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("parse params: %w", err)
		}
	}

	controlPath, err := paths.ControlFilePath()
	if err != nil {
		return err
	}
	info, err := supervisor.ReadControlFile(controlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("worker is not running")
		}
		return fmt.Errorf("read control file: %w", err)
	}
	if !lockfile.IsAlive(info.PID) {
		return fmt.Errorf("worker is not running (stale control file)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := session.New(cfg.SessionConfig())
	defer client.Disconnect()
	client.Connect(info.Addr, info.Token)
	if err := awaitConnected(client, callTimeout); err != nil {
		return err
	}

	payload, err := client.Request(cmd.Context(), method, params, callTimeout)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}

	if len(payload) == 0 {
		fmt.Println("🛡️ ok")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, payload, "", "  "); err != nil {
		fmt.Println(string(payload))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

// awaitConnected waits for the session handshake to complete.
func awaitConnected(client *session.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch client.State() {
		case session.StateConnected:
			return nil
		case session.StateError, session.StateDisconnected:
			return fmt.Errorf("could not open session to worker")
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out opening session to worker")
}

func init() {
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.AddCommand(callCmd)
}
