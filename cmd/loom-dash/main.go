// Package main implements the loom-dash run dashboard.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
)

// robotMode outputs a JSON snapshot of the latest run for scripting.
func robotMode(snapshot *RunSnapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// journalPath returns the run journal path from env or ~/.loom/journal.db.
func journalPath() string {
	if v := os.Getenv("LOOM_JOURNAL_DB"); v != "" {
		return v
	}
	base := os.Getenv("LOOM_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".loom")
	}
	return filepath.Join(base, "journal.db")
}

func main() {
	robot := flag.Bool("robot", false, "print a JSON snapshot and exit")
	flag.Parse()

	path := journalPath()

	if *robot {
		snapshot, err := fetchSnapshot(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
			os.Exit(1)
		}
		data, err := robotMode(snapshot)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	p := tea.NewProgram(newModel(path), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
