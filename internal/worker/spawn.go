package worker

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Environment variables injected into the worker process.
const (
	// EnvStateDir points the worker at its private state directory.
	EnvStateDir = "WORKER_STATE_DIR"

	// EnvConfigPath points the worker at its private config file.
	EnvConfigPath = "WORKER_CONFIG"

	// EnvControlToken carries the session credential the worker must require
	// on its control endpoint.
	EnvControlToken = "WORKER_CONTROL_TOKEN"
)

// inheritedEnv is the allowlist of host environment variables copied into the
// worker. Display- and session-facing variables are deliberately absent.
var inheritedEnv = []string{"PATH", "HOME", "TMPDIR", "LANG", "LC_ALL", "USER"}

// SpawnSpec describes how to launch the worker control process.
type SpawnSpec struct {
	// Path is the resolved worker binary.
	Path string

	// Port is the allocated control endpoint port.
	Port int

	// StateDir is the worker's private state directory.
	StateDir string

	// ConfigPath is the worker's private config file, written by WriteConfig
	// before spawn.
	ConfigPath string

	// Token is the control session credential injected into the environment.
	Token string

	// ExtraEnv appends additional KEY=VALUE pairs after the managed set.
	ExtraEnv []string
}

// Command builds the exec.Cmd that launches the worker in control-plane mode.
// The command is not started; the caller owns pipes and lifecycle.
func (s SpawnSpec) Command() *exec.Cmd {
	cmd := exec.Command(s.Path, "serve",
		"--control-port", strconv.Itoa(s.Port),
		"--headless",
	)
	cmd.Env = s.environ()
	return cmd
}

// environ builds the worker's isolated environment: an explicit allowlist of
// host variables plus the injected state, config, and credential entries.
func (s SpawnSpec) environ() []string {
	env := make([]string, 0, len(inheritedEnv)+len(s.ExtraEnv)+3)
	for _, key := range inheritedEnv {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	env = append(env,
		EnvStateDir+"="+s.StateDir,
		EnvConfigPath+"="+s.ConfigPath,
		EnvControlToken+"="+s.Token,
	)
	return append(env, s.ExtraEnv...)
}

// FileConfig is the private config file rendered for the worker before spawn.
type FileConfig struct {
	StateDir    string `yaml:"state_dir"`
	ControlPort int    `yaml:"control_port"`
	LogLevel    string `yaml:"log_level,omitempty"`
}

// WriteConfig renders the worker's private config file as YAML.
// It creates the parent directory if needed.
func WriteConfig(path string, cfg FileConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal worker config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create worker config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write worker config: %w", err)
	}
	return nil
}

// NewToken generates a fresh control session credential.
func NewToken() string {
	return uuid.NewString()
}
