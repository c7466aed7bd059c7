package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"loom/pkg/agent"
)

// Config is the loom.toml file shape. Every field has a usable default so a
// missing config file is not an error.
type Config struct {
	Agent   AgentConfig   `toml:"agent"`
	Tracker TrackerConfig `toml:"tracker"`
	Run     RunConfig     `toml:"run"`
}

// AgentConfig configures the coding-agent subprocess.
type AgentConfig struct {
	Binary          string   `toml:"binary"`
	Model           string   `toml:"model"`
	SkipPermissions bool     `toml:"skip_permissions"`
	AllowedTools    []string `toml:"allowed_tools"`
	MCPConfigPath   string   `toml:"mcp_config"`
	SystemPrompt    string   `toml:"system_prompt"`
	TimeoutSec      int      `toml:"timeout_sec"`
	InactivitySec   int      `toml:"inactivity_sec"`
	KillGraceSec    int      `toml:"kill_grace_sec"`
	MaxTurns        int      `toml:"max_turns"`
}

// TrackerConfig configures the tracking-service client.
type TrackerConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// RunConfig configures the scheduler.
type RunConfig struct {
	ContinueOnFailure bool `toml:"continue_on_failure"`
	ItemTimeoutSec    int  `toml:"item_timeout_sec"`
	Retries           int  `toml:"retries"`
}

// defaultConfig returns the built-in configuration.
func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Binary:        agent.DefaultBinary,
			TimeoutSec:    int(agent.DefaultTimeout / time.Second),
			InactivitySec: int(agent.DefaultInactivityTimeout / time.Second),
			KillGraceSec:  int(agent.DefaultKillGrace / time.Second),
		},
		Run: RunConfig{
			ItemTimeoutSec: 900,
			Retries:        3,
		},
	}
}

// LoadConfig reads the TOML config at path, layering it over the defaults
// and applying env overrides last. A missing file yields defaults + env.
// Environment variables:
//   - LOOM_AGENT_BINARY: agent executable (overrides agent.binary)
//   - LOOM_MODEL: model identifier (overrides agent.model)
//   - LOOM_TRACKER_URL: tracking service base URL (overrides tracker.base_url)
//   - LOOM_TRACKER_TOKEN: bearer token (overrides tracker.token)
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No file: defaults + env.
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv layers LOOM_* env overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LOOM_AGENT_BINARY"); v != "" {
		cfg.Agent.Binary = v
	}
	if v := os.Getenv("LOOM_MODEL"); v != "" {
		cfg.Agent.Model = v
	}
	if v := os.Getenv("LOOM_TRACKER_URL"); v != "" {
		cfg.Tracker.BaseURL = v
	}
	if v := os.Getenv("LOOM_TRACKER_TOKEN"); v != "" {
		cfg.Tracker.Token = v
	}
}

// AgentOptions converts the agent section into client options.
func (c Config) AgentOptions() agent.Options {
	return agent.Options{
		Binary:            c.Agent.Binary,
		Model:             c.Agent.Model,
		SkipPermissions:   c.Agent.SkipPermissions,
		AllowedTools:      c.Agent.AllowedTools,
		MCPConfigPath:     c.Agent.MCPConfigPath,
		SystemPrompt:      c.Agent.SystemPrompt,
		MaxTurns:          c.Agent.MaxTurns,
		Timeout:           time.Duration(c.Agent.TimeoutSec) * time.Second,
		InactivityTimeout: time.Duration(c.Agent.InactivitySec) * time.Second,
		KillGrace:         time.Duration(c.Agent.KillGraceSec) * time.Second,
	}
}

// ItemTimeout returns the per-item run cap.
func (c Config) ItemTimeout() time.Duration {
	return time.Duration(c.Run.ItemTimeoutSec) * time.Second
}

// WriteDefault serializes the default config to path, failing if the file
// already exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	data, err := toml.Marshal(defaultConfig())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config holds no secrets by default
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
