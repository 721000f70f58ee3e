package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PersistedState is the small document that must survive a process
// restart: the login session token and the unread-counter map.
type PersistedState struct {
	LoginSessionID string         `json:"loginSessionId"`
	Unread         map[string]int `json:"unread"`
}

// StateFile reads and writes the persisted state document.
type StateFile struct {
	path string
}

// NewStateFile creates a state file handle. Nothing is touched on disk
// until Load or Save is called.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the state document. A missing file is not an error and
// yields an empty state.
func (f *StateFile) Load() (PersistedState, error) {
	state := PersistedState{Unread: map[string]int{}}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("read state file: %w", err)
	}

	if err := json.Unmarshal(raw, &state); err != nil {
		return PersistedState{Unread: map[string]int{}}, fmt.Errorf("parse state file: %w", err)
	}
	if state.Unread == nil {
		state.Unread = map[string]int{}
	}
	return state, nil
}

// Save writes the state document, creating parent directories as needed.
func (f *StateFile) Save(state PersistedState) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
