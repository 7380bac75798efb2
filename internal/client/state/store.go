package state

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"codearena/internal/domain/model"

	"gopkg.in/yaml.v3"
)

type fileState struct {
	LastRoomCode string    `yaml:"last_room_code,omitempty"`
	UpdatedAt    time.Time `yaml:"updated_at,omitempty"`
}

// FileStore remembers the last room the user joined so the client can offer
// to rejoin it. The value is a hint, never authoritative.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) read() (fileState, error) {
	var st fileState
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse state: %w", err)
	}
	return st, nil
}

func (s *FileStore) write(st fileState) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return writeFile(s.path, data)
}

// LastRoom returns the remembered room code, or "" when there is none.
func (s *FileStore) LastRoom() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	return st.LastRoomCode, err
}

func (s *FileStore) SaveLastRoom(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(fileState{LastRoomCode: model.CanonicalRoomCode(code), UpdatedAt: s.now().UTC()})
}

// ClearLastRoom forgets code if it is the remembered room. A different
// remembered room is left alone.
func (s *FileStore) ClearLastRoom(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	if err != nil {
		return err
	}
	if st.LastRoomCode == "" || st.LastRoomCode != model.CanonicalRoomCode(code) {
		return nil
	}
	return s.write(fileState{UpdatedAt: s.now().UTC()})
}
