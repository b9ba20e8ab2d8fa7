// Package worker resolves and launches the supervised worker binary.
//
// The worker is an externally supplied long-running process; warden treats it
// as an opaque collaborator exposing the control endpoint wire contract. This
// package owns the two pieces of that boundary: finding the binary and
// building the isolated command that launches it.
package worker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnvWorkerPath overrides binary resolution entirely when set.
const EnvWorkerPath = "WARDEN_WORKER_PATH"

// DefaultBinaryName is the name used for PATH lookup when no candidate
// location matches.
const DefaultBinaryName = "workerd"

// ErrNotFound is returned when the worker binary cannot be located.
var ErrNotFound = errors.New("worker: binary not found")

// Locator resolves the worker entry point from an ordered candidate list.
type Locator struct {
	// Candidates are filesystem paths checked in order; the first that
	// exists wins.
	Candidates []string

	// Name is the executable name used for a final PATH lookup.
	// Defaults to DefaultBinaryName.
	Name string
}

// Resolve returns the first candidate location that exists.
// Resolution order: WARDEN_WORKER_PATH env var, each candidate path, then a
// PATH lookup by name. Returns ErrNotFound if none match.
func (l Locator) Resolve() (string, error) {
	if path := os.Getenv(EnvWorkerPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s from %s: %v", ErrNotFound, path, EnvWorkerPath, err)
		}
		return path, nil
	}

	for _, candidate := range l.Candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	name := l.Name
	if name == "" {
		name = DefaultBinaryName
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	tried := strings.Join(l.Candidates, ", ")
	if tried == "" {
		tried = "(none)"
	}
	return "", fmt.Errorf("%w: checked %s and PATH for %q; install the worker or set %s",
		ErrNotFound, tried, name, EnvWorkerPath)
}
