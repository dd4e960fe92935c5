package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// HistoryStore persists the finished-job history
type HistoryStore interface {
	Load() ([]HistoryEntry, error)
	Save(entries []HistoryEntry) error
}

// FileHistoryStore keeps the history in a JSON file
type FileHistoryStore struct {
	path string
	mu   sync.Mutex
}

// NewFileHistoryStore creates the store and its parent directory
func NewFileHistoryStore(path string) (*FileHistoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileHistoryStore{path: path}, nil
}

// Path returns the backing file
func (s *FileHistoryStore) Path() string {
	return s.path
}

// Load reads the history. A missing file is an empty history.
func (s *FileHistoryStore) Load() ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return entries, nil
}

// Save replaces the file atomically through a temporary file
func (s *FileHistoryStore) Save(entries []HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
