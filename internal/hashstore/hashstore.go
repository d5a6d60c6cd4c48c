package hashstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reductor/goldensync/internal/digest"
)

var (
	// ErrNotFound means no record has been written yet (first run)
	ErrNotFound = errors.New("hash record not found")
	// ErrCorrupt means the record exists but does not hold a valid digest
	ErrCorrupt = errors.New("hash record is corrupt")
)

// Store persists the digest of the source asset at a fixed path
type Store struct {
	path string
}

// New creates a store for the record at path
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the record location
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted digest. A missing record yields ErrNotFound and
// unparsable content yields ErrCorrupt; any other error means the record
// could not be read.
func (s *Store) Load() (digest.Digest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return digest.Digest{}, ErrNotFound
		}
		return digest.Digest{}, fmt.Errorf("failed to read hash record %s: %w", s.path, err)
	}

	d, err := digest.Parse(string(data))
	if err != nil {
		return digest.Digest{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return d, nil
}

// Store replaces the record with d using temp file + rename, so a crash
// leaves either the old record or the new one.
func (s *Store) Store(d digest.Digest) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".goldensync-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.WriteString(d.String()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp record: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync temp record: %w", err)
	}

	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to chmod temp record: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp record: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace hash record %s: %w", s.path, err)
	}

	return nil
}

// Remove deletes the record. A missing record is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove hash record %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}
