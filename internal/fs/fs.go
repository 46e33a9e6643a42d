// Package fs provides the filesystem seam the cache core runs on.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] package
//   - [Chaos]: testing implementation that injects random failures
//
// Every read, write, rename, and lock the cache performs goes through an
// [FS] rather than [os] directly, so the corruption-recovery and
// write-time-I/O-error paths can be exercised with [Chaos] instead of
// actually breaking the test machine's disk.
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
type File interface {
	// Embedded interfaces from [io] package.
	// These provide Read, Write, Close, and Seek methods.
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for low-level operations like [syscall.Flock].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// Locker represents a held advisory file lock.
// Call [Locker.Close] to release it.
type Locker interface {
	io.Closer
}

// FS defines the filesystem operations the cache core needs: reading and
// writing slot/journal files, the dirty-to-clean and journal-rebuild
// renames, recursive directory delete for Cache.Delete, and the one
// exclusive lock taken for the life of an open cache directory.
//
// Two implementations are provided:
//   - [Real]: production use, wraps [os]
//   - [Chaos]: testing use, injects random failures
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// Create creates or truncates a file for writing. See [os.Create].
	Create(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	//
	// Common flags: [os.O_RDONLY], [os.O_WRONLY], [os.O_RDWR],
	// [os.O_APPEND], [os.O_CREATE], [os.O_EXCL], [os.O_TRUNC].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to path such that readers never observe a
	// partially written file: the data is written to a temporary file in the
	// same directory and renamed into place. The cache core does not call
	// it; the journal rebuild uses Create plus Rename.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// ReadDir reads the directory named by path and returns a list of
	// directory entries sorted by filename. See [os.ReadDir]. The cache core
	// does not call it.
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll].
	// Backs the cache's delete() operation.
	RemoveAll(path string) error

	// Rename moves/renames a file. See [os.Rename]. Atomic on the same
	// filesystem; backs the edit protocol's dirty-to-clean rename and the
	// journal rebuild's temp-to-final swap.
	Rename(oldpath, newpath string) error

	// Lock acquires an exclusive advisory lock on path, blocking until
	// acquired or until an internal timeout elapses. Call [Locker.Close]
	// to release. The cache takes exactly one of these for the lifetime of
	// an open directory.
	Lock(path string) (Locker, error)
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
