package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// IndexLock guards the index data directory against concurrent writers.
// Search only needs read access, so readers skip the lock; indexing must
// hold it for its full duration.
type IndexLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewIndexLock creates a lock for the given data directory. The lock file
// lives at <dir>/.index.lock.
func NewIndexLock(dir string) *IndexLock {
	lockPath := filepath.Join(dir, ".index.lock")
	return &IndexLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock acquires an exclusive lock, blocking until available.
func (l *IndexLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking. Returns false when
// another process holds it.
func (l *IndexLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *IndexLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *IndexLock) Path() string {
	return l.path
}

// IsLocked reports whether this process currently holds the lock.
func (l *IndexLock) IsLocked() bool {
	return l.locked
}
