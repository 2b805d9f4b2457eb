// Package fileutil provides case-insensitive file lookup for asset directories.
// Game data copied from old media often mixes upper and lower case names
// (BANK01, Bank01, bank01), so every lookup goes through this package.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrNotFound is returned when no directory entry matches the requested name.
var ErrNotFound = errors.New("file not found")

// FindFileCaseInsensitiveFS searches dir in fsys for filename, ignoring case.
// It returns the slash-separated path of the first match.
//
// Example:
//
//	p, err := FindFileCaseInsensitiveFS(os.DirFS("/games/aw"), ".", "memlist.bin")
//	// finds "MEMLIST.BIN", "Memlist.bin", ...
func FindFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) (string, error) {
	// 完全一致を先に試す
	exact := path.Join(dir, filename)
	if info, err := fs.Stat(fsys, exact); err == nil && !info.IsDir() {
		return exact, nil
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	searchName := strings.ToLower(filename)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == searchName {
			return path.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w: %s (searched in %s)", ErrNotFound, filename, dir)
}

// ReadFileCaseInsensitiveFS reads filename from dir in fsys, ignoring case.
func ReadFileCaseInsensitiveFS(fsys fs.FS, dir, filename string) ([]byte, error) {
	p, err := FindFileCaseInsensitiveFS(fsys, dir, filename)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(fsys, p)
}
