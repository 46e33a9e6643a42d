package diskcache

import "errors"

var (
	// ErrClosed is returned by any operation on a cache that has already been
	// closed or deleted.
	ErrClosed = errors.New("diskcache: cache is closed")

	// ErrInvalidKey is returned when a key is empty or contains a space, CR,
	// or LF byte.
	ErrInvalidKey = errors.New("diskcache: invalid key")

	// ErrInvalidValueCount is returned by Open when ValueCount is not positive.
	ErrInvalidValueCount = errors.New("diskcache: value count must be positive")

	// ErrInvalidMaxSize is returned by Open when MaxSize is not positive.
	ErrInvalidMaxSize = errors.New("diskcache: max size must be positive")

	// ErrEditorClosed is returned when Commit, Abort, or NewWriter is called
	// on an Editor that has already completed.
	ErrEditorClosed = errors.New("diskcache: editor already committed or aborted")

	// ErrSlotMissing is returned by Commit when a key is being published for
	// the first time but one or more slot writers were never obtained and
	// written, violating the first-publish constraint.
	ErrSlotMissing = errors.New("diskcache: missing slot on first publish")

	// ErrInvalidSlot is returned by Editor.NewWriter and Snapshot.Reader when
	// the slot index is outside [0, ValueCount).
	ErrInvalidSlot = errors.New("diskcache: slot index out of range")
)
