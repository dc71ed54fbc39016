// Package config provides mutable process-wide runtime settings.
//
// Settings holds the current repository directory, the one piece of
// control-plane state the consumer side depends on. A producer (or an
// operator tool) may repoint the repository at any time; dynamic-location
// indexes re-read the value on every scan. The value starts unset, which
// scans treat as "not yet initialized, try later" rather than an error.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const currentVersion = 1

var ErrVersionUnsupported = errors.New("settings version unsupported")

// envelope is the versioned on-disk format.
type envelope struct {
	Version  int          `json:"version"`
	Settings settingsData `json:"settings"`
}

type settingsData struct {
	Repository string `json:"repository,omitempty"`
}

// Settings is a mutex-guarded runtime settings store with optional JSON
// file persistence. A zero persistence path keeps settings in memory only.
type Settings struct {
	mu         sync.Mutex
	path       string
	repository string
}

// NewSettings creates a Settings store. path is the JSON persistence file,
// or empty for memory-only settings.
func NewSettings(path string) *Settings {
	return &Settings{path: path}
}

// Load reads persisted settings from disk. A missing file is not an
// error; the settings stay unset.
func (s *Settings) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	if env.Version != currentVersion {
		return fmt.Errorf("%w: %d", ErrVersionUnsupported, env.Version)
	}
	s.repository = env.Settings.Repository
	return nil
}

// Repository returns the current repository directory. ok is false while
// the repository has not been configured yet.
func (s *Settings) Repository() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repository, s.repository != ""
}

// SetRepository repoints the repository directory and persists the change
// when a persistence path is configured.
func (s *Settings) SetRepository(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repository = dir
	if s.path == "" {
		return nil
	}
	return s.flushLocked()
}

// flushLocked writes the settings file atomically via temp file + rename.
func (s *Settings) flushLocked() error {
	env := envelope{
		Version:  currentVersion,
		Settings: settingsData{Repository: s.repository},
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
