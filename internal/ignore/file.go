package ignore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileStore keeps the ignore list in a YAML file mapping request id to
// message.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. A missing file is an empty list.
func (s *FileStore) Load(_ context.Context) (map[int64]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[int64]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ignore file: %w", err)
	}

	entries := map[int64]string{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse ignore file %s: %w", s.path, err)
	}
	return entries, nil
}

// Save writes entries atomically through a temporary file.
func (s *FileStore) Save(_ context.Context, entries map[int64]string) error {
	if entries == nil {
		entries = map[int64]string{}
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal ignore list: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create ignore directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
