// Package config provides configuration loading for warden.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tessro/warden/internal/paths"
	"github.com/tessro/warden/internal/session"
	"github.com/tessro/warden/internal/supervisor"
	"github.com/tessro/warden/internal/worker"
)

// Config represents the warden configuration file.
type Config struct {
	// Worker configures how the worker binary is located and run.
	Worker WorkerConfig `toml:"worker"`

	// Supervisor configures lifecycle management.
	Supervisor SupervisorConfig `toml:"supervisor"`

	// Session configures the control-plane session client.
	Session SessionConfig `toml:"session"`
}

// WorkerConfig configures worker binary resolution.
type WorkerConfig struct {
	// Binary is an explicit path to the worker binary. It takes priority
	// over PATH lookup when set.
	Binary string `toml:"binary"`
	// Name is the binary name used for PATH lookup.
	Name string `toml:"name"`
	// LogLevel is passed to the worker through its private config file.
	LogLevel string `toml:"log-level"`
}

// SupervisorConfig configures process lifecycle management.
type SupervisorConfig struct {
	// Port is the first control port probed.
	Port int `toml:"port"`
	// MaxPortProbes bounds the free-port search.
	MaxPortProbes int `toml:"max-port-probes"`
	// ReadinessKeywords override the default startup detection substrings.
	ReadinessKeywords []string `toml:"readiness-keywords"`
	// ReadinessTimeoutMS bounds the wait for a readiness signal.
	ReadinessTimeoutMS int `toml:"readiness-timeout-ms"`
	// StopTimeoutMS bounds the wait after SIGTERM before SIGKILL.
	StopTimeoutMS int `toml:"stop-timeout-ms"`
	// KillGraceMS bounds the re-check after SIGKILL.
	KillGraceMS int `toml:"kill-grace-ms"`
	// LogCapacity is the output ring buffer size.
	LogCapacity int `toml:"log-capacity"`
	// LogTail is how many trailing log lines status reports include.
	LogTail int `toml:"log-tail"`
}

// SessionConfig configures the session client.
type SessionConfig struct {
	// Role requested in the handshake.
	Role string `toml:"role"`
	// Scopes requested in the handshake.
	Scopes []string `toml:"scopes"`
	// BackoffBaseMS is the initial reconnect backoff.
	BackoffBaseMS int `toml:"backoff-base-ms"`
	// BackoffCapMS caps the reconnect backoff.
	BackoffCapMS int `toml:"backoff-cap-ms"`
	// MaxAttempts bounds reconnection attempts.
	MaxAttempts int `toml:"max-attempts"`
	// DialTimeoutMS bounds a single transport dial.
	DialTimeoutMS int `toml:"dial-timeout-ms"`
}

// Load loads the warden configuration from the standard path.
// Returns nil config and nil error if the file doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the configuration from a specific path.
// Returns nil config and nil error if the file doesn't exist.
func LoadFromPath(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// SupervisorConfig builds a supervisor.Config, applying defaults for any
// field the file leaves unset. Safe on a nil receiver.
func (c *Config) SupervisorConfig() supervisor.Config {
	out := supervisor.DefaultConfig()
	if c == nil {
		return out
	}

	out.Locator = worker.Locator{Name: c.Worker.Name}
	if c.Worker.Binary != "" {
		out.Locator.Candidates = []string{c.Worker.Binary}
	}
	out.WorkerLogLevel = c.Worker.LogLevel

	s := c.Supervisor
	if s.Port != 0 {
		out.PreferredPort = s.Port
	}
	if s.MaxPortProbes != 0 {
		out.MaxPortProbes = s.MaxPortProbes
	}
	if len(s.ReadinessKeywords) > 0 {
		out.ReadinessKeywords = s.ReadinessKeywords
	}
	if s.ReadinessTimeoutMS != 0 {
		out.ReadinessTimeout = time.Duration(s.ReadinessTimeoutMS) * time.Millisecond
	}
	if s.StopTimeoutMS != 0 {
		out.StopTimeout = time.Duration(s.StopTimeoutMS) * time.Millisecond
	}
	if s.KillGraceMS != 0 {
		out.KillGrace = time.Duration(s.KillGraceMS) * time.Millisecond
	}
	if s.LogCapacity != 0 {
		out.LogCapacity = s.LogCapacity
	}
	if s.LogTail != 0 {
		out.LogTail = s.LogTail
	}
	return out
}

// SessionConfig builds a session.Config, applying defaults for any field
// the file leaves unset. Safe on a nil receiver.
func (c *Config) SessionConfig() session.Config {
	var out session.Config
	if c == nil {
		return out
	}

	s := c.Session
	out.Role = s.Role
	out.Scopes = s.Scopes
	if s.BackoffBaseMS != 0 {
		out.BackoffBase = time.Duration(s.BackoffBaseMS) * time.Millisecond
	}
	if s.BackoffCapMS != 0 {
		out.BackoffCap = time.Duration(s.BackoffCapMS) * time.Millisecond
	}
	out.MaxAttempts = s.MaxAttempts
	if s.DialTimeoutMS != 0 {
		out.DialTimeout = time.Duration(s.DialTimeoutMS) * time.Millisecond
	}
	return out
}
