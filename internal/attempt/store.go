package attempt

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/eduvpn/eduvpn-core/internal/config/atomicfile"
	"github.com/eduvpn/eduvpn-core/internal/util"
	"github.com/go-errors/errors"
)

// Filename is the name of the file in the state directory
const Filename = "last_connection_attempt.json"

// Store stores the single last connection attempt in a file
type Store struct {
	directory string
}

// NewStore creates a store in a directory
func NewStore(directory string) *Store {
	return &Store{directory: directory}
}

func (s *Store) filename() string {
	return filepath.Join(s.directory, Filename)
}

// Save saves the attempt, replacing the previous one
func (s *Store) Save(a *ConnectionAttempt) error {
	b, err := json.Marshal(a)
	if err != nil {
		return errors.WrapPrefix(err, "failed encoding connection attempt", 0)
	}
	if err = util.EnsureDirectory(s.directory); err != nil {
		return err
	}
	if err = atomicfile.WriteFile(s.filename(), b, 0o600); err != nil {
		return errors.WrapPrefix(err, "failed saving connection attempt", 0)
	}
	return nil
}

// Load loads the attempt
// If there is no attempt, nil is returned without an error
func (s *Store) Load() (*ConnectionAttempt, error) {
	b, err := os.ReadFile(s.filename())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.WrapPrefix(err, "failed reading connection attempt", 0)
	}
	var a ConnectionAttempt
	if err = json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Remove removes the attempt, it is not an error if there is none
func (s *Store) Remove() error {
	err := os.Remove(s.filename())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.WrapPrefix(err, "failed removing connection attempt", 0)
	}
	return nil
}
