package fs

import (
	"errors"
	iofs "io/fs"
	"sync"
)

// InjectedError marks an error as deliberately manufactured by [Chaos] rather
// than raised by the real OS. [StrictTestFS] and the Chaos tests rely on this
// distinction: a test that forces a 100% WriteFailRate wants to
// assert the cache reacted to *that* fault, not to some unrelated real I/O
// error that happened to occur during the same run.
//
// InjectedError wraps the underlying error so errors.Is/As keep working
// against it.
//
// Note: for errno-style faults, [Chaos] hands back a plain *fs.PathError with
// a syscall.Errno in PathError.Err so os.IsNotExist/os.IsPermission keep
// classifying it correctly. Those values can't carry an InjectedError wrapper
// without breaking that classification, so they're tracked in a side table
// instead; see [IsInjected].
//
// All methods panic if the receiver or Err is nil.
type InjectedError struct {
	Err error
}

// Error returns the underlying error's message. Panics if e or e.Err is nil.
func (e *InjectedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error. Panics if e is nil.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying error is a timeout. Panics if e is
// nil. It lets a chaos-injected lock timeout satisfy os.IsTimeout the way a
// real lock timeout does.
func (e *InjectedError) Timeout() bool {
	t, ok := e.Err.(interface{ Timeout() bool })

	return ok && t.Timeout()
}

// injectedPathFaults tracks *fs.PathError values manufactured by pathError,
// since those can't be wrapped in InjectedError without losing their
// os.IsNotExist/os.IsPermission classification.
var injectedPathFaults sync.Map // map[*fs.PathError]struct{}

// IsInjected reports whether err (or anything it wraps) was manufactured by
// [Chaos]. Returns false for a nil err or for a genuine OS error, letting a
// test tell "the fault I asked for happened" apart from "something else went
// wrong on disk."
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError
	if errors.As(err, &injected) {
		return true
	}

	var pathErr *iofs.PathError
	if errors.As(err, &pathErr) {
		_, tracked := injectedPathFaults.Load(pathErr)

		return tracked
	}

	return false
}

// trackInjectedPathError registers pe as chaos-manufactured so a later
// IsInjected(pe) reports true without disturbing pe's own error chain.
// Panics if pe is nil.
func trackInjectedPathError(pe *iofs.PathError) {
	injectedPathFaults.Store(pe, struct{}{})
}

// wrapInjected marks err as chaos-manufactured by wrapping it in
// InjectedError, unless it's already marked. Panics if err is nil.
func wrapInjected(err error) error {
	if IsInjected(err) {
		return err
	}

	return &InjectedError{Err: err}
}
