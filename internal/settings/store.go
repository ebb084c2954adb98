package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Store is the single source of truth for runtime settings. It loads the
// persisted document at startup (or seeds defaults on first run), and writes
// the whole document back after every mutation. The in-memory copy stays
// authoritative when a write fails.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

// DefaultPath returns the per-user settings location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stagehand", "settings.json"), nil
}

// Open loads settings from path, creating the file from defaults when it
// does not exist yet.
func Open(path string) (*Store, error) {
	st := &Store{path: path, current: Defaults()}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := st.persist(st.current); err != nil {
			return nil, fmt.Errorf("seed settings: %w", err)
		}
		return st, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var raw Settings
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	st.current = Normalize(raw)
	return st, nil
}

// Current returns a copy of the effective settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update merges patch over the current settings, normalizes, persists and
// returns the new settings plus the reaction diff. A persistence failure is
// returned but does not roll back the in-memory state.
func (s *Store) Update(patch Patch) (Settings, Diff, error) {
	s.mu.Lock()
	next, diff := Apply(s.current, patch)
	s.current = next
	s.mu.Unlock()

	if err := s.persist(next); err != nil {
		return next, diff, &PersistenceError{Path: s.path, Err: err}
	}
	return next, diff, nil
}

// Replace swaps in a full settings document (used by tests and import).
func (s *Store) Replace(next Settings) error {
	next = Normalize(next)
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	if err := s.persist(next); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

// persist writes the whole document atomically: temp file in the same
// directory, then rename over the target.
func (s *Store) persist(val Settings) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	b, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// PersistenceError reports a failed settings write. The in-memory settings
// remain authoritative when it occurs.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist settings to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
