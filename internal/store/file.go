package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists the key space as one JSON object on disk. Every write
// rewrites the file before returning, matching the synchronous persistence
// the transcript manager relies on.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens (or creates) the state file at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("touch file: %w", err)
	}
	_ = f.Close()
	return &FileStore{path: path}, nil
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadUnlocked()
	v, ok := values[key]
	return v, ok
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadUnlocked()
	values[key] = value
	return s.saveUnlocked(values)
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadUnlocked()
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.saveUnlocked(values)
}

func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadUnlocked()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *FileStore) RemoveByPrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.loadUnlocked()
	changed := false
	for k := range values {
		if strings.HasPrefix(k, prefix) {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveUnlocked(values)
}

// loadUnlocked reads the state file. An empty or malformed file yields an
// empty map: corrupt local state is recoverable, never an error.
func (s *FileStore) loadUnlocked() map[string]string {
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		return map[string]string{}
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil || values == nil {
		return map[string]string{}
	}
	return values
}

func (s *FileStore) saveUnlocked(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
