package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another envboot process holds the lock.
var ErrLocked = errors.New("another envboot run is in progress")

// SingleInstance guards a project against concurrent runs.
type SingleInstance struct {
	fileLock *flock.Flock
}

// NewSingleInstance creates a lock backed by the file at path.
func NewSingleInstance(path string) *SingleInstance {
	return &SingleInstance{fileLock: flock.New(path)}
}

// Lock acquires the lock without blocking.
func (si *SingleInstance) Lock() error {
	if err := os.MkdirAll(filepath.Dir(si.fileLock.Path()), 0755); err != nil {
		return fmt.Errorf("could not create lock directory: %w", err)
	}
	locked, err := si.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", si.fileLock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w (lock file %s)", ErrLocked, si.fileLock.Path())
	}
	return nil
}

// Release drops the lock.
func (si *SingleInstance) Release() {
	if si.fileLock != nil {
		si.fileLock.Unlock()
	}
}
