// Package runlock serializes mutating invocations against a shared data
// directory. Read-only commands skip it so they never queue behind a sync.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileName = "tablodl.lock"
	dirPerm      = 0o755
)

// HeldError reports that another process already holds the data dir lock.
type HeldError struct {
	// Path is the lock file the other process holds.
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("another tablodl process is already running (lock held on %s)", e.Path)
}

// Lock is an acquired data dir lock. Release it when the invocation is done.
type Lock struct {
	path string
	fl   *flock.Flock
}

// Acquire takes an exclusive lock on dataDir, creating the directory if
// needed. It does not block: when another process holds the lock, a HeldError
// is returned instead.
func Acquire(dataDir string) (*Lock, error) {
	if err := os.MkdirAll(dataDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, lockFileName)
	fl := flock.New(path)

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}

	if !ok {
		return nil, &HeldError{Path: path}
	}

	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}

	return nil
}
