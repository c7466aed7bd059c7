package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// loomDir is the per-user state directory name under $HOME.
const loomDir = ".loom"

// Paths holds all resolved loom state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	LoomHome      string // ~/.loom or LOOM_HOME
	ConfigPath    string // loom.toml or LOOM_CONFIG_PATH
	JournalDBPath string // journal.db or LOOM_JOURNAL_DB
}

// ResolvePaths returns all loom paths, respecting env var overrides.
// Environment variables:
//   - LOOM_HOME: base directory for all loom state (default: ~/.loom)
//   - LOOM_CONFIG_PATH: config file (default: $LOOM_HOME/loom.toml)
//   - LOOM_JOURNAL_DB: run journal database (default: $LOOM_HOME/journal.db)
//
// If LOOM_HOME is set, it becomes the base for all default paths. Specific
// env vars override both the default and the LOOM_HOME base.
func ResolvePaths() (*Paths, error) {
	loomHome, err := resolveLoomHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		LoomHome:      loomHome,
		ConfigPath:    resolvePathWithEnv("LOOM_CONFIG_PATH", loomHome, "loom.toml"),
		JournalDBPath: resolvePathWithEnv("LOOM_JOURNAL_DB", loomHome, "journal.db"),
	}, nil
}

// resolveLoomHome returns the loom home directory from LOOM_HOME or ~/.loom.
func resolveLoomHome() (string, error) {
	if v := os.Getenv("LOOM_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, loomDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
