// Package workdir locates the files the coach keeps on this machine.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Root returns the base directory for local data. The path is expanded at
// runtime to resolve to:
//
//	$HOME/Documents/CallCoach
func Root() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, "Documents", "CallCoach"), nil
}

// Layout is the directory structure of the local backend under one data
// directory.
type Layout struct {
	Dir string
}

// DefaultLayout uses Root as the data directory.
func DefaultLayout() (Layout, error) {
	root, err := Root()
	if err != nil {
		return Layout{}, err
	}
	return Layout{Dir: root}, nil
}

// AudioDir holds stored audio objects.
func (l Layout) AudioDir() string {
	return filepath.Join(l.Dir, "audio")
}

// DatabasePath is the sqlite database file.
func (l Layout) DatabasePath() string {
	return filepath.Join(l.Dir, "callcoach.db")
}

// ExportPath is where a copy of a local recording is written.
func (l Layout) ExportPath(filename string) string {
	return filepath.Join(l.Dir, "exports", filepath.Base(filename))
}

// Prep ensures the data directories exist.
func (l Layout) Prep() error {
	for _, dir := range []string{l.Dir, l.AudioDir(), filepath.Dir(l.ExportPath("x"))} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}
