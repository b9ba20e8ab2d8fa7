// Package lockfile tracks the PID of the supervised worker process.
//
// The lock file is a plain-text file containing a single decimal PID. Its
// absence means "no tracked worker"; presence with a dead PID means the file
// is stale and safe to clear. The file survives a restart of the supervising
// process, which is how a new supervisor instance discovers and cleans up a
// worker left behind by a crashed predecessor.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/tessro/warden/internal/paths"
)

// DefaultPath returns the default worker lock file path.
func DefaultPath() string {
	return paths.LockPath()
}

// Write writes the given worker PID to the lock file.
// It creates the parent directory if it doesn't exist.
func Write(path string, pid int) error {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	return nil
}

// Read reads the worker PID from the lock file.
// Returns 0 and an error if the file doesn't exist or is invalid.
func Read(path string) (int, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, fmt.Errorf("read lock file: %w", err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("parse lock file pid: %w", err)
	}

	return pid, nil
}

// Remove removes the lock file.
// It returns nil if the file doesn't exist.
func Remove(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// IsAlive checks if a process with the given PID is running.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	// Send signal 0 to check if process exists
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	if err != nil {
		// Process doesn't exist or we don't have permission
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return false
		}
		// EPERM means process exists but we can't signal it
		if errors.Is(err, syscall.EPERM) {
			return true
		}
		return false
	}

	return true
}

// ReadLive reads the lock file and verifies the recorded process is alive.
// Returns (pid, true) for a live tracked worker, (0, false) otherwise.
func ReadLive(path string) (int, bool) {
	pid, err := Read(path)
	if err != nil {
		return 0, false
	}

	if IsAlive(pid) {
		return pid, true
	}

	// Stale lock file - process not running
	return 0, false
}

// CleanStale removes the lock file if the recorded process is not running.
// Returns true if a stale lock file was cleaned up.
func CleanStale(path string) bool {
	if _, live := ReadLive(path); !live {
		_ = Remove(path)
		return true
	}
	return false
}
