package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrockway/ring-clock/control/face"
	"gopkg.in/yaml.v3"
)

// Selection is the face the operator last picked.
type Selection struct {
	Mode   face.Mode `yaml:"mode"`
	Scheme string    `yaml:"scheme"`
}

// StateFile remembers the selected face across restarts.  It implements clock.Persister.
type StateFile struct {
	Path string
	mu   sync.Mutex
}

// Load returns the saved selection.  ok is false if nothing has been saved yet.
func (s *StateFile) Load() (sel Selection, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sel, false, nil
		}
		return sel, false, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(b, &sel); err != nil {
		return Selection{}, false, fmt.Errorf("parse state %s: %w", s.Path, err)
	}
	if _, err := face.SchemeByName(sel.Scheme); err != nil {
		return Selection{}, false, fmt.Errorf("state %s: %w", s.Path, err)
	}
	return sel, true, nil
}

// SaveSelection writes the selection, replacing the file atomically.
func (s *StateFile) SaveSelection(mode face.Mode, scheme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := yaml.Marshal(Selection{Mode: mode, Scheme: scheme})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".ringclock-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
