// Package state persists the user's selections shared by the UI process and
// the daemons.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/spf13/afero"
)

// DefaultLocale is used until the user picks one
const DefaultLocale = "en"

// AppState is the content of state.json
type AppState struct {
	SelectedGame string `json:"selectedGame"`
	Locale       string `json:"locale"`
	AutoMode     bool   `json:"autoMode"`
}

// Store reads and writes the state file and the GUI-initialized flag in dir
type Store struct {
	fs  afero.Fs
	dir string
	mu  sync.Mutex
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, utils.StateFileName)
}

func (s *Store) flagPath() string {
	return filepath.Join(s.dir, utils.GUIFlagFileName)
}

// Load returns the saved state, or defaults when nothing was saved yet
func (s *Store) Load() (AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (AppState, error) {
	st := AppState{Locale: DefaultLocale}
	data, err := afero.ReadFile(s.fs, s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("failed to read state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return AppState{Locale: DefaultLocale}, fmt.Errorf("failed to parse state: %w", err)
	}
	if st.Locale == "" {
		st.Locale = DefaultLocale
	}
	return st, nil
}

// Save replaces the state file
func (s *Store) Save(st AppState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(st)
}

func (s *Store) save(st AppState) error {
	if err := s.fs.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path()); err != nil {
		return fmt.Errorf("failed to replace state: %w", err)
	}
	return nil
}

// Update applies fn to the current state and saves the result
func (s *Store) Update(fn func(*AppState)) (AppState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return st, err
	}
	fn(&st)
	return st, s.save(st)
}

// MarkGUIInitialized creates the flag file the change watcher waits for
func (s *Store) MarkGUIInitialized() error {
	if err := s.fs.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.flagPath(), nil, 0600)
}

// ClearGUIInitialized removes the flag file
func (s *Store) ClearGUIInitialized() error {
	err := s.fs.Remove(s.flagPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GUIInitialized reports whether the UI has finished starting up
func (s *Store) GUIInitialized() bool {
	ok, err := afero.Exists(s.fs, s.flagPath())
	return err == nil && ok
}
