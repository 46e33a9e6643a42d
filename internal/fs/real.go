package fs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

// Real implements [FS] using the real filesystem.
//
// All methods are pure passthroughs to the [os] package with identical
// behavior and error semantics. The exceptions are [Real.Exists], which
// wraps [os.Stat], [Real.WriteFileAtomic], which uses [atomic.WriteFile],
// and [Real.Lock], which delegates to a [FlockManager] for flock-based
// locking with inode reverification.
type Real struct {
	locks *FlockManager
}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	r := &Real{}
	r.locks = NewFlockManager(r)

	return r
}

// --- File Operations ---

// A passthrough wrapper for [os.Open].
func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

// A passthrough wrapper for [os.Create].
func (r *Real) Create(path string) (File, error) {
	return os.Create(path)
}

// A passthrough wrapper for [os.OpenFile].
func (r *Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

// --- Convenience Methods ---

// A passthrough wrapper for [os.ReadFile].
func (r *Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFileAtomic writes data to path via a temp-file-plus-rename, using
// [atomic.WriteFile] so readers never observe a partial write.
func (r *Real) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return err
	}

	return os.Chmod(path, perm)
}

// A passthrough wrapper for [os.ReadDir].
func (r *Real) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// A passthrough wrapper for [os.MkdirAll].
func (r *Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// --- Metadata ---

// A passthrough wrapper for [os.Stat].
func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists checks if a file exists using [os.Stat].
// Returns (true, nil) if the file exists, (false, nil) if it does not,
// or (false, err) for other errors.
func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// --- Mutations ---

// A passthrough wrapper for [os.Remove].
func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

// A passthrough wrapper for [os.RemoveAll].
func (r *Real) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// A passthrough wrapper for [os.Rename].
func (r *Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// --- Locking ---

// lockTimeout bounds how long Lock waits for contention to clear before
// giving up. A held lock normally means another process opened the same
// cache directory; this is not meant to coordinate fast-changing state.
const lockTimeout = 5 * time.Second

// Lock acquires an exclusive advisory lock on path via flock(2), retrying
// with backoff until acquired or lockTimeout elapses. The lock is taken on a
// dedicated file under a ".locks" subdirectory next to path, not on path
// itself, so locking never competes with the cache's own reads/writes/renames
// of that path. Parent directories are created if missing.
func (r *Real) Lock(path string) (Locker, error) {
	lockPath := filepath.Join(filepath.Dir(path), ".locks", filepath.Base(path)+".lock")

	lk, err := r.locks.LockWithTimeout(lockPath, lockTimeout)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return nil, fmt.Errorf("%w: %w", os.ErrDeadlineExceeded, err)
		}

		return nil, err
	}

	return lk, nil
}

var (
	_ FS     = (*Real)(nil)
	_ Locker = (*Lock)(nil)
)
