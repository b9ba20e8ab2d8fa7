// Package paths provides a single source of truth for warden file paths.
// All path helpers honor environment variable overrides for isolated testing.
//
// Path resolution precedence:
//  1. Specific env vars (WARDEN_LOCK_PATH, WARDEN_LOG_PATH) take highest priority
//  2. WARDEN_DIR env var sets the base directory (derives state/lock/log/config)
//  3. Default behavior (~/.warden, ~/.config/warden) when no env vars are set
package paths

import (
	"os"
	"path/filepath"
)

// Environment variable names for path overrides.
const (
	// EnvWardenDir is the base directory override (e.g., /tmp/warden-test).
	// When set, state, lock, log, and config paths derive from this directory.
	EnvWardenDir = "WARDEN_DIR"

	// EnvLockPath overrides the worker lock file path directly.
	EnvLockPath = "WARDEN_LOCK_PATH"

	// EnvLogPath overrides the log file path directly.
	EnvLogPath = "WARDEN_LOG_PATH"
)

// BaseDir returns the warden base directory (~/.warden by default).
// Honors WARDEN_DIR environment variable.
func BaseDir() (string, error) {
	if dir := os.Getenv(EnvWardenDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".warden"), nil
}

// StateDir returns the private state directory handed to the worker
// (~/.warden/state by default, or WARDEN_DIR/state).
func StateDir() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "state"), nil
}

// ConfigDir returns the warden config directory (~/.config/warden by default).
// When WARDEN_DIR is set, returns WARDEN_DIR/config instead.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvWardenDir); dir != "" {
		return filepath.Join(dir, "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "warden"), nil
}

// ConfigPath returns the path to the warden config file
// (~/.config/warden/config.toml by default, or WARDEN_DIR/config/config.toml).
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LockPath returns the worker lock file path.
// Precedence: WARDEN_LOCK_PATH > WARDEN_DIR/state/worker.pid > ~/.warden/state/worker.pid
func LockPath() string {
	if path := os.Getenv(EnvLockPath); path != "" {
		return path
	}
	dir, err := StateDir()
	if err != nil {
		return "/tmp/warden-worker.pid"
	}
	return filepath.Join(dir, "worker.pid")
}

// LogPath returns the warden log file path.
// Precedence: WARDEN_LOG_PATH > WARDEN_DIR/warden.log > ~/.warden/warden.log
func LogPath() string {
	if path := os.Getenv(EnvLogPath); path != "" {
		return path
	}
	base, err := BaseDir()
	if err != nil {
		return "/tmp/warden.log"
	}
	return filepath.Join(base, "warden.log")
}

// WorkerConfigPath returns the path of the private config file written for the
// worker before each spawn (WARDEN_DIR/state/worker.yaml or
// ~/.warden/state/worker.yaml).
func WorkerConfigPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "worker.yaml"), nil
}

// WorkerLogPath returns the file that captures worker output when the worker
// is started detached (WARDEN_DIR/state/worker.log or
// ~/.warden/state/worker.log).
func WorkerLogPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "worker.log"), nil
}

// ControlFilePath returns the path of the control session file written after
// each spawn. It records the control endpoint address and session token so
// other warden processes can reach the running worker.
func ControlFilePath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "control.json"), nil
}
