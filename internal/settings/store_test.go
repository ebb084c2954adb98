package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenSeedsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.Current() != Defaults() {
		t.Fatalf("Current()=%+v want defaults", st.Current())
	}
	// file must exist after first open
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seeded file: %v", err)
	}
	var onDisk Settings
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("seeded file not valid JSON: %v", err)
	}
	if onDisk != Defaults() {
		t.Fatalf("seeded document %+v want defaults", onDisk)
	}
}

func TestOpenNormalizesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	doc := `{"runtime_mode":"bogus","live_port":0,"tts_server":"","update_channel":"nightly"}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cur := st.Current()
	if cur.RuntimeMode != ModeLocal || cur.LivePort != DefaultLivePort || cur.TTSServer != DefaultTTSServer {
		t.Fatalf("normalization skipped: %+v", cur)
	}
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for malformed settings file")
	}
}

func TestUpdatePersistsWholeDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	next, diff, err := st.Update(Patch{RuntimeMode: strp(ModeCloud), RemoteAPIBase: strp("https://cloud.example")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !diff.RuntimeModeChanged {
		t.Error("diff.RuntimeModeChanged not set")
	}
	if st.Current() != next {
		t.Error("Current() diverged from Update result")
	}

	// a fresh store sees the persisted values
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Current() != next {
		t.Fatalf("reopened=%+v want %+v", reopened.Current(), next)
	}
}

func TestUpdateKeepsMemoryOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// point the store at an unwritable location
	st.path = filepath.Join(dir, "missing", "deeper", "settings.json")
	if err := os.WriteFile(filepath.Join(dir, "missing"), []byte("block"), 0o600); err != nil {
		t.Fatal(err)
	}

	next, _, err := st.Update(Patch{AutoStartAPI: boolp(true)})
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("err=%v want *PersistenceError", err)
	}
	if !next.AutoStartAPI || !st.Current().AutoStartAPI {
		t.Fatal("in-memory settings must stay authoritative after a failed write")
	}
}

func TestReplace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	full := Defaults()
	full.RepoRoot = "/opt/avatar"
	full.LivePort = 8020
	if err := st.Replace(full); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if st.Current().LivePort != 8020 {
		t.Fatalf("Current()=%+v", st.Current())
	}
}
