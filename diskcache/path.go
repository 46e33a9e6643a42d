package diskcache

import (
	"path/filepath"
	"strconv"
)

// journalFileName is the name of the live append-only journal inside the
// cache directory.
const journalFileName = "journal"

// journalTmpFileName is the name used while writing a fresh or rebuilt
// journal before it's renamed over journalFileName.
const journalTmpFileName = "journal.tmp"

// lockFileName is a dedicated file locked for the lifetime of the cache. It
// is never replaced or renamed over, unlike journalFileName, which is
// swapped out on every journal rebuild - flock locks an inode, not a
// pathname, so locking a file that gets renamed over would silently stop
// guarding anything the moment a rebuild runs.
const lockFileName = "journal.lock"

// cleanPath returns the path of the published (clean) file holding slot i of
// key, inside dir. It is a pure function of its inputs; it does not touch the
// filesystem.
func cleanPath(dir, key string, slot int) string {
	return filepath.Join(dir, key+"."+strconv.Itoa(slot))
}

// dirtyPath returns the path of the in-progress (dirty) file holding slot i
// of key while an edit is open, inside dir.
func dirtyPath(dir, key string, slot int) string {
	return filepath.Join(dir, key+"."+strconv.Itoa(slot)+".tmp")
}

// journalPath returns the path of the live journal file inside dir.
func journalPath(dir string) string {
	return filepath.Join(dir, journalFileName)
}

// journalTmpPath returns the path of the scratch journal file used during a
// fresh-open or rebuild write, inside dir.
func journalTmpPath(dir string) string {
	return filepath.Join(dir, journalTmpFileName)
}

// lockPath returns the path of the cache's dedicated advisory-lock file
// inside dir.
func lockPath(dir string) string {
	return filepath.Join(dir, lockFileName)
}
