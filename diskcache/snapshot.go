package diskcache

import (
	"fmt"
	"io"

	cfs "github.com/calvinalkan/diskcache/internal/fs"
)

// Snapshot is a read handle onto one published version of an entry: N slot
// readers opened eagerly at [Cache.Get] time, so every slot reflects the same
// commit even if the entry is later edited or removed. Close releases the
// underlying file descriptors; a Snapshot must be closed exactly once.
type Snapshot struct {
	key     string
	lengths []int64
	files   []cfs.File
}

// Reader returns a seekable reader for slot. The returned reader remains
// valid until the Snapshot is closed, independent of any later edit or
// removal of the same key.
func (s *Snapshot) Reader(slot int) io.ReadSeeker {
	if slot < 0 || slot >= len(s.files) {
		return errorReadSeeker{fmt.Errorf("%w: slot %d out of range [0,%d)", ErrInvalidSlot, slot, len(s.files))}
	}

	return s.files[slot]
}

// Length returns the byte length of slot as recorded at the time the
// snapshot was taken.
func (s *Snapshot) Length(slot int) int64 {
	if slot < 0 || slot >= len(s.lengths) {
		return 0
	}

	return s.lengths[slot]
}

// Close releases every reader owned by the snapshot. The first error
// encountered, if any, is returned; Close still attempts to close every
// reader regardless.
func (s *Snapshot) Close() error {
	var firstErr error

	for _, f := range s.files {
		if f == nil {
			continue
		}

		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// errorReadSeeker is returned by Reader for an out-of-range slot so callers
// get the error on first use instead of a nil-pointer panic.
type errorReadSeeker struct{ err error }

func (e errorReadSeeker) Read([]byte) (int, error)       { return 0, e.err }
func (e errorReadSeeker) Seek(int64, int) (int64, error) { return 0, e.err }
