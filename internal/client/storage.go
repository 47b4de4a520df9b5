package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// State is the tracker's persisted form. All timestamps are unix
// milliseconds.
type State struct {
	Processed map[string]int64 `json:"processed,omitempty"`
	Locks     map[string]int64 `json:"locks,omitempty"`
	Recent    map[string]int64 `json:"recent,omitempty"`
	Unloading int64            `json:"unloading,omitempty"`
}

func newState() *State {
	return &State{
		Processed: map[string]int64{},
		Locks:     map[string]int64{},
		Recent:    map[string]int64{},
	}
}

// normalize replaces nil maps so callers can write without checks.
func (s *State) normalize() *State {
	if s == nil {
		return newState()
	}
	if s.Processed == nil {
		s.Processed = map[string]int64{}
	}
	if s.Locks == nil {
		s.Locks = map[string]int64{}
	}
	if s.Recent == nil {
		s.Recent = map[string]int64{}
	}
	return s
}

// Storage persists tracker state between sessions. Load returns (nil, nil)
// when nothing has been stored yet.
type Storage interface {
	Load() (*State, error)
	Save(*State) error
}

// MemoryStorage keeps a serialized copy of the state in memory.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (m *MemoryStorage) Load() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(m.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemoryStorage) Save(s *State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = b
	m.mu.Unlock()
	return nil
}

// FileStorage stores the state as a JSON document at Path. Writes go to a
// temporary file that is renamed over the target.
type FileStorage struct {
	Path string
}

// NewFileStorage returns a FileStorage for path.
func NewFileStorage(path string) *FileStorage { return &FileStorage{Path: path} }

func (f *FileStorage) Load() (*State, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracker state: %w", err)
	}
	if len(b) == 0 {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode tracker state: %w", err)
	}
	return &s, nil
}

func (f *FileStorage) Save(s *State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tracker-*.json")
	if err != nil {
		return fmt.Errorf("write tracker state: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write tracker state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write tracker state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write tracker state: %w", err)
	}
	return nil
}
