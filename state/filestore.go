package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists each field as one plain-text file under a directory.
// Reads of missing files return "" rather than an error; values are trimmed
// on read so trailing newlines from editors or shell redirects are harmless.
//
// The directory is assumed single-writer. There is no locking: one task runs
// against one state directory at a time.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("state: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) path(field string) string {
	return filepath.Join(f.dir, field)
}

func (f *FileStore) Get(field string) (string, error) {
	data, err := os.ReadFile(f.path(field))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("state: read %s: %w", field, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileStore) Set(field, value string) error {
	if err := os.WriteFile(f.path(field), []byte(value), 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", field, err)
	}
	return nil
}

func (f *FileStore) Append(field, value string) error {
	file, err := os.OpenFile(f.path(field), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("state: open %s: %w", field, err)
	}
	defer file.Close()
	if _, err := file.WriteString(value); err != nil {
		return fmt.Errorf("state: append %s: %w", field, err)
	}
	return nil
}
