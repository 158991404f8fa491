package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores keys in a text file, one per line.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for the file at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// LoadKeys reads all keys, creating the file if it does not exist.
func (f *FileBackend) LoadKeys(ctx context.Context) ([]string, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		created, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("create ledger file: %w", err)
		}
		return nil, created.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer file.Close()

	var keys []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	return keys, nil
}

// AppendKeys merges keys into the file. The file is rewritten de-duplicated
// through a temp file and rename.
func (f *FileBackend) AppendKeys(ctx context.Context, keys []string) error {
	existing, err := f.LoadKeys(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(existing)+len(keys))
	var merged []string
	for _, k := range append(existing, keys...) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		merged = append(merged, k)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	for _, k := range merged {
		w.WriteString(k)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per operation.
func (f *FileBackend) Close() error {
	return nil
}
