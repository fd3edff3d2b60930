// Package session persists the grading session token between submissions.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileName is the cache file name used when no path is configured.
const DefaultFileName = "answers.enc"

// File is a single-token cache on disk. A missing file means a new session.
type File struct {
	Path string
}

// Open returns the cache at path. When mustExist is set the file has to be
// present already; this is how an explicitly chosen answer file is treated.
func Open(path string, mustExist bool) (*File, error) {
	if mustExist {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("answer file %s does not exist: %w", path, err)
		}
	}
	return &File{Path: path}, nil
}

// DefaultPath returns answers.enc inside the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(dir, "labgrader", DefaultFileName)
}

// Load returns the cached token, or "" when there is none.
func (f *File) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session %s: %w", f.Path, err)
	}
	return string(data), nil
}

// Save overwrites the cache with token. Empty tokens are not written.
func (f *File) Save(token string) error {
	if token == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write session %s: %w", f.Path, err)
	}
	return nil
}
