package worker

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSpawnSpec_Command(t *testing.T) {
	spec := SpawnSpec{
		Path:       "/opt/workerd",
		Port:       52100,
		StateDir:   "/tmp/state",
		ConfigPath: "/tmp/state/worker.yaml",
		Token:      "secret",
	}

	cmd := spec.Command()

	if cmd.Path != "/opt/workerd" {
		t.Errorf("cmd.Path = %s, want /opt/workerd", cmd.Path)
	}
	wantArgs := []string{"/opt/workerd", "serve", "--control-port", "52100", "--headless"}
	if !slices.Equal(cmd.Args, wantArgs) {
		t.Errorf("cmd.Args = %v, want %v", cmd.Args, wantArgs)
	}
}

func TestSpawnSpec_EnvironIsolation(t *testing.T) {
	t.Setenv("DISPLAY", ":0")
	t.Setenv("SSH_AUTH_SOCK", "/tmp/agent.sock")
	t.Setenv("LANG", "en_US.UTF-8")

	spec := SpawnSpec{
		Path:       "/opt/workerd",
		Port:       52100,
		StateDir:   "/tmp/state",
		ConfigPath: "/tmp/state/worker.yaml",
		Token:      "secret",
		ExtraEnv:   []string{"WORKER_MODE=test"},
	}

	env := spec.Command().Env

	for _, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		switch key {
		case "DISPLAY", "SSH_AUTH_SOCK":
			t.Errorf("inherited %s must not leak into worker env", key)
		}
	}

	want := map[string]string{
		EnvStateDir:     "/tmp/state",
		EnvConfigPath:   "/tmp/state/worker.yaml",
		EnvControlToken: "secret",
		"LANG":          "en_US.UTF-8",
		"WORKER_MODE":   "test",
	}
	for key, value := range want {
		if !slices.Contains(env, key+"="+value) {
			t.Errorf("worker env missing %s=%s", key, value)
		}
	}
}

func TestWriteConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "state", "worker.yaml")

	cfg := FileConfig{
		StateDir:    "/tmp/state",
		ControlPort: 52100,
		LogLevel:    "info",
	}
	if err := WriteConfig(path, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var got FileConfig
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if got != cfg {
		t.Errorf("round-tripped config = %+v, want %+v", got, cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 0600", perm)
	}
}

func TestNewToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewToken()
		if tok == "" {
			t.Fatal("empty token")
		}
		if seen[tok] {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = true
	}
}
