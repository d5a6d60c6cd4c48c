package hashstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a contended lock is retried
const lockRetryDelay = 100 * time.Millisecond

// Lock takes an exclusive advisory lock on a sidecar file next to the record.
// It blocks until the lock is acquired or ctx is done. The returned function
// releases the lock.
//
// When the record directory does not exist yet there is no record to guard,
// so no lock file is created and the returned function does nothing.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		if os.IsNotExist(err) {
			return func() error { return nil }, nil
		}
		return nil, fmt.Errorf("failed to stat record directory: %w", err)
	}

	fl := flock.New(s.lockPath())
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("waiting for lock %s: %w", s.lockPath(), err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", s.lockPath())
	}

	return func() error {
		if err := fl.Unlock(); err != nil {
			return fmt.Errorf("failed to unlock %s: %w", s.lockPath(), err)
		}
		return nil
	}, nil
}
