package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the state document in a YAML file. Writes go to a
// temporary file that is renamed over the target.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates the parent directory of path if needed
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the state file; a missing file yields (nil, nil)
func (f *FileStore) Load(_ context.Context) (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	return &doc, nil
}

// Save replaces the state file atomically
func (f *FileStore) Save(_ context.Context, doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
