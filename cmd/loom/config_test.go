package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/pkg/agent"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LOOM_AGENT_BINARY", "LOOM_MODEL", "LOOM_TRACKER_URL", "LOOM_TRACKER_TOKEN"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_MissingFileYieldsDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Agent.Binary != agent.DefaultBinary {
		t.Errorf("Agent.Binary = %q, want the agent default", cfg.Agent.Binary)
	}
	if cfg.Run.ItemTimeoutSec != 900 || cfg.Run.Retries != 3 {
		t.Errorf("Run = %+v, want 900s item timeout and 3 retries", cfg.Run)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "loom.toml")
	doc := `[agent]
model = "opus"
timeout_sec = 120
allowed_tools = ["Bash", "Edit"]

[tracker]
base_url = "https://tracker.internal"
token = "s3cret"

[run]
continue_on_failure = true
retries = 1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Agent.Model != "opus" || cfg.Agent.TimeoutSec != 120 {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if len(cfg.Agent.AllowedTools) != 2 {
		t.Errorf("AllowedTools = %v", cfg.Agent.AllowedTools)
	}
	if cfg.Tracker.BaseURL != "https://tracker.internal" || cfg.Tracker.Token != "s3cret" {
		t.Errorf("Tracker = %+v", cfg.Tracker)
	}
	if !cfg.Run.ContinueOnFailure || cfg.Run.Retries != 1 {
		t.Errorf("Run = %+v", cfg.Run)
	}
	// Untouched sections keep their defaults.
	if cfg.Run.ItemTimeoutSec != 900 {
		t.Errorf("ItemTimeoutSec = %d, want default 900", cfg.Run.ItemTimeoutSec)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LOOM_MODEL", "haiku")
	t.Setenv("LOOM_TRACKER_URL", "http://localhost:9999")

	path := filepath.Join(t.TempDir(), "loom.toml")
	doc := "[agent]\nmodel = \"opus\"\n[tracker]\nbase_url = \"https://tracker.internal\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Agent.Model != "haiku" {
		t.Errorf("Agent.Model = %q, want env override", cfg.Agent.Model)
	}
	if cfg.Tracker.BaseURL != "http://localhost:9999" {
		t.Errorf("Tracker.BaseURL = %q, want env override", cfg.Tracker.BaseURL)
	}
}

func TestLoadConfig_BadTOML(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "loom.toml")
	if err := os.WriteFile(path, []byte("agent = [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() succeeded on malformed TOML, want error")
	}
}

func TestConfig_AgentOptions(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Agent.Model = "opus"
	cfg.Agent.TimeoutSec = 60
	cfg.Agent.InactivitySec = 30
	cfg.Agent.KillGraceSec = 5
	cfg.Agent.MaxTurns = 12

	opts := cfg.AgentOptions()
	if opts.Model != "opus" || opts.MaxTurns != 12 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Timeout != time.Minute || opts.InactivityTimeout != 30*time.Second || opts.KillGrace != 5*time.Second {
		t.Errorf("timeouts = %v/%v/%v, want 1m/30s/5s", opts.Timeout, opts.InactivityTimeout, opts.KillGrace)
	}
}

func TestConfig_ItemTimeout(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	if got := cfg.ItemTimeout(); got != 15*time.Minute {
		t.Errorf("ItemTimeout() = %v, want 15m", got)
	}
}

func TestWriteDefault(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "loom.toml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if !strings.Contains(string(data), "[agent]") {
		t.Errorf("written config missing [agent] section:\n%s", data)
	}

	// A round trip must parse back to the defaults.
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() on written default error: %v", err)
	}
	if cfg.Run.ItemTimeoutSec != 900 {
		t.Errorf("round-tripped ItemTimeoutSec = %d, want 900", cfg.Run.ItemTimeoutSec)
	}

	if err := WriteDefault(path); err == nil {
		t.Error("WriteDefault() overwrote an existing file, want error")
	}
}
