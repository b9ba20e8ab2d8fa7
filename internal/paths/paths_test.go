package paths

import (
	"path/filepath"
	"testing"
)

func TestBaseDir_Default(t *testing.T) {
	t.Setenv(EnvWardenDir, "")

	dir, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir: %v", err)
	}
	if filepath.Base(dir) != ".warden" {
		t.Errorf("expected ~/.warden, got %s", dir)
	}
}

func TestBaseDir_EnvOverride(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")

	dir, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir: %v", err)
	}
	if dir != "/tmp/warden-test" {
		t.Errorf("expected /tmp/warden-test, got %s", dir)
	}
}

func TestStateDir_DerivesFromBase(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")

	dir, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir: %v", err)
	}
	if dir != "/tmp/warden-test/state" {
		t.Errorf("expected /tmp/warden-test/state, got %s", dir)
	}
}

func TestLockPath_SpecificOverrideWins(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")
	t.Setenv(EnvLockPath, "/tmp/custom.pid")

	if got := LockPath(); got != "/tmp/custom.pid" {
		t.Errorf("expected /tmp/custom.pid, got %s", got)
	}
}

func TestLockPath_DerivesFromStateDir(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")
	t.Setenv(EnvLockPath, "")

	if got := LockPath(); got != "/tmp/warden-test/state/worker.pid" {
		t.Errorf("unexpected lock path %s", got)
	}
}

func TestLogPath_Override(t *testing.T) {
	t.Setenv(EnvLogPath, "/tmp/custom.log")

	if got := LogPath(); got != "/tmp/custom.log" {
		t.Errorf("expected /tmp/custom.log, got %s", got)
	}
}

func TestConfigPath_WardenDir(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath: %v", err)
	}
	if path != "/tmp/warden-test/config/config.toml" {
		t.Errorf("unexpected config path %s", path)
	}
}

func TestWorkerConfigPath(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")

	path, err := WorkerConfigPath()
	if err != nil {
		t.Fatalf("WorkerConfigPath: %v", err)
	}
	if path != "/tmp/warden-test/state/worker.yaml" {
		t.Errorf("unexpected worker config path %s", path)
	}
}

func TestWorkerLogPath(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")

	path, err := WorkerLogPath()
	if err != nil {
		t.Fatalf("WorkerLogPath: %v", err)
	}
	if path != "/tmp/warden-test/state/worker.log" {
		t.Errorf("unexpected worker log path %s", path)
	}
}

func TestControlFilePath(t *testing.T) {
	t.Setenv(EnvWardenDir, "/tmp/warden-test")

	path, err := ControlFilePath()
	if err != nil {
		t.Fatalf("ControlFilePath: %v", err)
	}
	if path != "/tmp/warden-test/state/control.json" {
		t.Errorf("unexpected control file path %s", path)
	}
}
