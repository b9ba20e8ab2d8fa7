package supervisor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ControlInfo records the running worker's control endpoint so warden
// processes other than the one that spawned it can open a session.
type ControlInfo struct {
	Addr      string    `json:"addr"`
	Port      int       `json:"port"`
	PID       int       `json:"pid"`
	Token     string    `json:"token"`
	StartedAt time.Time `json:"started_at"`
}

// ReadControlFile loads a control session file written by a supervisor.
func ReadControlFile(path string) (*ControlInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info ControlInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse control file: %w", err)
	}
	return &info, nil
}

func writeControlFile(path string, info ControlInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal control info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create control directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write control file: %w", err)
	}
	return nil
}

func removeControlFile(path string) {
	if path == "" {
		return
	}
	// Leaving a stale control file behind is not fatal; readers verify the
	// recorded PID before trusting it.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("remove control file", "error", err)
	}
}
