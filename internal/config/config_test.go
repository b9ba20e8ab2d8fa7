package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tessro/warden/internal/supervisor"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPath_Missing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Error("expected nil config for missing file")
	}
}

func TestLoadFromPath(t *testing.T) {
	path := writeConfig(t, `
[worker]
binary = "/opt/worker/bin/workerd"
log-level = "debug"

[supervisor]
port = 53000
stop-timeout-ms = 2000
readiness-keywords = ["serving"]

[session]
role = "supervisor"
scopes = ["control", "logs"]
backoff-base-ms = 250
max-attempts = 5
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config")
	}

	if cfg.Worker.Binary != "/opt/worker/bin/workerd" {
		t.Errorf("worker binary = %q", cfg.Worker.Binary)
	}
	if cfg.Worker.LogLevel != "debug" {
		t.Errorf("worker log level = %q", cfg.Worker.LogLevel)
	}
	if cfg.Supervisor.Port != 53000 {
		t.Errorf("port = %d", cfg.Supervisor.Port)
	}
	if len(cfg.Session.Scopes) != 2 {
		t.Errorf("scopes = %v", cfg.Session.Scopes)
	}
}

func TestSupervisorConfig_Defaults(t *testing.T) {
	var cfg *Config
	sc := cfg.SupervisorConfig()

	if sc.PreferredPort != supervisor.DefaultPort {
		t.Errorf("preferred port = %d, want %d", sc.PreferredPort, supervisor.DefaultPort)
	}
	if sc.StopTimeout != supervisor.DefaultStopTimeout {
		t.Errorf("stop timeout = %s", sc.StopTimeout)
	}
	if len(sc.ReadinessKeywords) == 0 {
		t.Error("expected default readiness keywords")
	}
}

func TestSupervisorConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
[worker]
binary = "/opt/worker/bin/workerd"

[supervisor]
port = 53000
stop-timeout-ms = 2000
readiness-keywords = ["serving"]
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	sc := cfg.SupervisorConfig()
	if sc.PreferredPort != 53000 {
		t.Errorf("preferred port = %d, want 53000", sc.PreferredPort)
	}
	if sc.StopTimeout != 2*time.Second {
		t.Errorf("stop timeout = %s, want 2s", sc.StopTimeout)
	}
	if len(sc.ReadinessKeywords) != 1 || sc.ReadinessKeywords[0] != "serving" {
		t.Errorf("readiness keywords = %v", sc.ReadinessKeywords)
	}
	if len(sc.Locator.Candidates) != 1 || sc.Locator.Candidates[0] != "/opt/worker/bin/workerd" {
		t.Errorf("locator candidates = %v", sc.Locator.Candidates)
	}
	// Unset fields keep defaults.
	if sc.KillGrace != supervisor.DefaultKillGrace {
		t.Errorf("kill grace = %s", sc.KillGrace)
	}
}

func TestSessionConfig(t *testing.T) {
	path := writeConfig(t, `
[session]
role = "supervisor"
backoff-base-ms = 250
max-attempts = 5
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	sc := cfg.SessionConfig()
	if sc.Role != "supervisor" {
		t.Errorf("role = %q", sc.Role)
	}
	if sc.BackoffBase != 250*time.Millisecond {
		t.Errorf("backoff base = %s", sc.BackoffBase)
	}
	if sc.MaxAttempts != 5 {
		t.Errorf("max attempts = %d", sc.MaxAttempts)
	}
}
