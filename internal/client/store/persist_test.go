package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStateFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	f := NewStateFile(path)

	saved := PersistedState{
		LoginSessionID: "tok-abc",
		Unread:         map[string]int{"S1": 3, "S2": 1},
	}
	if err := f.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := f.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.LoginSessionID != "tok-abc" {
		t.Errorf("token: %q", loaded.LoginSessionID)
	}
	if loaded.Unread["S1"] != 3 || loaded.Unread["S2"] != 1 {
		t.Errorf("unread: %+v", loaded.Unread)
	}
}

func TestStateFileMissingIsEmpty(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "never-written.json"))

	state, err := f.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.LoginSessionID != "" || len(state.Unread) != 0 {
		t.Errorf("state not empty: %+v", state)
	}
	if state.Unread == nil {
		t.Error("unread map is nil")
	}
}

func TestStateFileCorruptReportsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewStateFile(path).Load()
	if err == nil {
		t.Fatal("corrupt file loaded without error")
	}
	if !strings.Contains(err.Error(), "parse state file") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStateFileUsesStableKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	f := NewStateFile(path)
	if err := f.Save(PersistedState{LoginSessionID: "x", Unread: map[string]int{}}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"loginSessionId"`, `"unread"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("state file missing key %s: %s", key, raw)
		}
	}
}
