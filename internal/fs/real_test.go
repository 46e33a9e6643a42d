package fs

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// Real's Lock() is tested end to end in lock_test.go (Test_RealLock_*),
// alongside FlockManager's stub-based unit tests. These tests cover Real's
// other two helpers: Exists, which diskcache's Open uses to check whether a
// journal is already present, and WriteFileAtomic, Real's temp-file-plus-
// rename write (the cache core itself does not call it).

// -----------------------------------------------------------------------------
// Exists() Tests
// -----------------------------------------------------------------------------

func TestReal_Exists_ReturnsFalseForNonExistent(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()

	exists, err := realFS.Exists(filepath.Join(dir, "does-not-exist.txt"))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, false; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

func TestReal_Exists_ReturnsTrueForFile(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.txt")

	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	exists, err := realFS.Exists(path)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, true; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

// TestReal_Exists_ReturnsTrueForDirectory checks Exists works for the
// .locks subdirectory Real.Lock creates, not just for cache value files.
func TestReal_Exists_ReturnsTrueForDirectory(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()
	subdir := filepath.Join(dir, "subdir")

	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	exists, err := realFS.Exists(subdir)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, true; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

// -----------------------------------------------------------------------------
// WriteFileAtomic() Tests
// -----------------------------------------------------------------------------

func TestReal_WriteFileAtomic_CreatesFile(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	err := realFS.WriteFileAtomic(path, []byte("hello"), 0o644)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("WriteFileAtomic err=%v, want=%v", got, want)
	}

	data, err := os.ReadFile(path)
	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("ReadFile err=%v, want=%v", got, want)
	}

	if got, want := string(data), "hello"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestReal_WriteFileAtomic_OverwritesExisting checks that a second write
// replaces whatever content the file held before.
func TestReal_WriteFileAtomic_OverwritesExisting(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	_ = realFS.WriteFileAtomic(path, []byte("first"), 0o644)

	err := realFS.WriteFileAtomic(path, []byte("second"), 0o644)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("WriteFileAtomic err=%v, want=%v", got, want)
	}

	data, _ := os.ReadFile(path)
	if got, want := string(data), "second"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestReal_WriteFileAtomic_NoTempFileLeftOnSuccess checks that the temporary
// file a write goes through does not survive it: afterwards the directory
// holds only the target file.
func TestReal_WriteFileAtomic_NoTempFileLeftOnSuccess(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	_ = realFS.WriteFileAtomic(path, []byte("hello"), 0o644)

	entries, _ := os.ReadDir(dir)
	if got, want := len(entries), 1; got != want {
		t.Fatalf("dirEntryCount=%d, want=%d (found: %v)", got, want, entries)
	}
}

// TestReal_WriteFileAtomic_ConcurrentWritesSafe runs concurrent writers and
// checks that the file afterwards still begins with a writer's prefix; it
// does not check that the content is exactly one writer's.
func TestReal_WriteFileAtomic_ConcurrentWritesSafe(t *testing.T) {
	realFS := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	var wg sync.WaitGroup

	writers := 10
	writesPerWriter := 20

	for i := range writers {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			for range writesPerWriter {
				content := []byte("writer-" + string(rune('A'+id)) + "-write")
				_ = realFS.WriteFileAtomic(path, content, 0o644)
			}
		}(i)
	}

	wg.Wait()

	data, err := os.ReadFile(path)
	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("ReadFile err=%v, want=%v", got, want)
	}

	if got, want := len(data) >= 7 && string(data[:7]) == "writer-", true; got != want {
		t.Fatalf("content corrupted: got %q", data)
	}
}
