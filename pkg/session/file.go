package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend persists session values as a JSON object in a single file.
// Every write replaces the file atomically (write temp, then rename), so a
// crash never leaves a partially written session behind.
type FileBackend struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// NewFileBackend creates a backend writing to path. The parent directory is
// created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file path.
func (f *FileBackend) Path() string {
	return f.path
}

// Load returns the values stored for keys. A missing file is an empty session.
func (f *FileBackend) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrBackendClosed{}
	}

	all, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set writes every key in values with one file replacement.
func (f *FileBackend) Set(ctx context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrBackendClosed{}
	}

	all, err := f.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		all[k] = v
	}
	return f.write(all)
}

// Delete removes keys with one file replacement. A file that cannot be
// parsed is removed entirely.
func (f *FileBackend) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrBackendClosed{}
	}

	all, err := f.read()
	if errors.Is(err, ErrCorruptSession) {
		return f.remove()
	}
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(all, k)
	}
	if len(all) == 0 {
		return f.remove()
	}
	return f.write(all)
}

// Close marks the backend closed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FileBackend) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileBackend) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return values, nil
}

func (f *FileBackend) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}
