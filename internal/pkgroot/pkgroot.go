// Package pkgroot locates the project root that owns the secrets directory.
package pkgroot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Markers identify a project root, checked in this order in each directory.
var Markers = []string{"go.mod", "package.json", ".git"}

// ErrNotFound is returned when no ancestor holds a marker.
var ErrNotFound = errors.New("no project root found")

// Find walks up from start to the first directory holding one of Markers.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", start, err)
	}

	for {
		for _, marker := range Markers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w above %s (looked for %v)", ErrNotFound, start, Markers)
		}
		dir = parent
	}
}

// FromWorkingDir runs Find from the current directory.
func FromWorkingDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return Find(wd)
}
