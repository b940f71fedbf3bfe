package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

// FileStore implements FallbackStore as one JSON file per key under a data
// directory. Writes go through an atomic rename so a crash mid-write never
// leaves a truncated document behind.
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewFileStore creates the data directory if needed and returns the store.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory: %w", err)
	}
	logger.Info("Opened file fallback store", zap.String("dir", dir))
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Read retrieves the value stored under key
func (s *FileStore) Read(key string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return value, nil
}

// Write stores value under key, replacing any previous value
func (s *FileStore) Write(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := atomic.WriteFile(s.path(key), bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting an absent key is not an error
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys for the collection, the listing key included.
func (s *FileStore) Keys(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list fallback directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if name == e.Name() || e.IsDir() {
			continue
		}
		if name == collection || strings.HasPrefix(name, collection+"_") {
			keys = append(keys, name)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
