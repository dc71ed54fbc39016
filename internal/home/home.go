// Package home manages the segstream home directory layout.
//
// The home directory owns the tool's persistent state, which is just the
// runtime settings file:
//
//	<root>/
//	  settings.json   (configured repository directory)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents a segstream home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/segstream
//   - macOS:   ~/Library/Application Support/segstream
//   - Windows: %APPDATA%/segstream
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "segstream")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// SettingsPath returns the path to the settings JSON file.
func (d Dir) SettingsPath() string {
	return filepath.Join(d.root, "settings.json")
}

// Ensure creates the home directory if it does not exist.
func (d Dir) Ensure() error {
	return os.MkdirAll(d.root, 0o750)
}
