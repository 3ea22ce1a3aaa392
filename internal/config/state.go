package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State is small UI state persisted between runs.
type State struct {
	LastTool string `json:"last_tool,omitempty"`
}

// StatePath returns the location of the state file, or "" when no config
// directory can be determined.
func StatePath() string {
	dir := Dir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "state.json")
}

// LoadState reads the state file. A missing or unreadable file yields an
// empty State.
func LoadState() State {
	var st State
	path := StatePath()
	if path == "" {
		return st
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}
	}
	return st
}

// SaveState writes st to the state file.
func SaveState(st State) error {
	path := StatePath()
	if path == "" {
		return fmt.Errorf("save state: no config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
