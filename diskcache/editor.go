package diskcache

import (
	"fmt"
	"io"
	"sync/atomic"

	cfs "github.com/calvinalkan/diskcache/internal/fs"
)

// Editor is an in-progress, multi-slot write transaction for one key. It is
// obtained from [Cache.Edit] and must be completed with exactly one call to
// [Editor.Commit] or [Editor.Abort].
//
// Editor is not safe for concurrent use by multiple goroutines.
type Editor struct {
	cache *Cache
	entry *Entry
	key   string

	files     []cfs.File // per-slot dirty file handle, nil until NewWriter(i) is called
	hasErrors atomic.Bool
	done      atomic.Bool
}

// editorWriter wraps a slot's dirty file, trapping (but never swallowing) any
// write error by setting its editor's hasErrors flag.
type editorWriter struct {
	e *Editor
	f cfs.File
}

func (w *editorWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		w.e.hasErrors.Store(true)
	}

	return n, err
}

var _ io.Writer = (*editorWriter)(nil)

// NewWriter returns a byte sink for slot. Every call creates the slot's dirty
// file afresh, truncating whatever an earlier call for the same slot wrote.
// The returned writer is only valid until Commit or Abort is called.
func (e *Editor) NewWriter(slot int) (io.Writer, error) {
	if e.done.Load() {
		return nil, ErrEditorClosed
	}

	if slot < 0 || slot >= len(e.files) {
		return nil, fmt.Errorf("%w: slot %d out of range [0,%d)", ErrInvalidSlot, slot, len(e.files))
	}

	f, err := e.cache.fs.Create(dirtyPath(e.cache.dir, e.key, slot))
	if err != nil {
		return nil, err
	}

	e.files[slot] = f

	return &editorWriter{e: e, f: f}, nil
}

// Commit finalizes the edit.
//
// If any slot writer hit a write error, Commit behaves like Abort but always
// drops the key entirely, deleting any previously published version too -
// the cache never publishes partial data and never leaves a half-invalidated
// entry around.
//
// Otherwise each slot whose dirty file was written this edit is published
// (renamed into place, its recorded length updated); slots that were never
// written keep their previous clean file and length. If the key is being
// published for the first time, every slot must have been written or Commit
// fails with [ErrSlotMissing] and the edit is dropped.
func (e *Editor) Commit() error {
	if e.done.Swap(true) {
		return ErrEditorClosed
	}

	e.closeFiles()

	c := e.cache

	c.mu.Lock()
	defer c.mu.Unlock()

	if e.hasErrors.Load() {
		return c.completeEditLocked(e, editFailed)
	}

	if !e.entry.Readable {
		for i, f := range e.files {
			if f == nil {
				_ = c.completeEditLocked(e, editFailed)

				return fmt.Errorf("%w: slot %d", ErrSlotMissing, i)
			}
		}
	}

	return c.completeEditLocked(e, editSuccess)
}

// Abort discards the edit: any dirty files are deleted and the entry
// reverts to its pre-edit state - dropped from the index if it was never
// published, otherwise its previous clean version is preserved by re-
// recording it in the journal.
func (e *Editor) Abort() error {
	if e.done.Swap(true) {
		return ErrEditorClosed
	}

	e.closeFiles()

	c := e.cache

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.completeEditLocked(e, editAbort)
}

func (e *Editor) closeFiles() {
	for _, f := range e.files {
		if f == nil {
			continue
		}

		if err := f.Close(); err != nil {
			e.hasErrors.Store(true)
		}
	}
}

// editOutcome distinguishes the three ways an edit can finish: published,
// aborted by the caller (prior version preserved if any), or failed during
// commit due to a write error (prior version invalidated, same as a remove).
type editOutcome int

const (
	editSuccess editOutcome = iota
	editAbort
	editFailed
)

// completeEditLocked finalizes e under c.mu, grounded on the edit protocol's
// commit/abort description: dirty-before-journal ordering on the way in is
// mirrored by delete-dirty-before-journal on every way out.
func (c *Cache) completeEditLocked(e *Editor, outcome editOutcome) error {
	entry := e.entry

	if outcome == editSuccess {
		return c.publishEditLocked(e, entry)
	}

	for i := range int(c.valueCount) {
		_ = c.fs.Remove(dirtyPath(c.dir, e.key, i))
	}

	entry.CurrentEditor = nil

	if outcome == editAbort && entry.Readable {
		if err := writeCleanRecord(c.journalWriter, e.key, entry.Lengths); err != nil {
			return err
		}

		return c.flushJournalAfterEditLocked()
	}

	if entry.Readable {
		for i := range int(c.valueCount) {
			_ = c.fs.Remove(cleanPath(c.dir, e.key, i))
		}

		c.size -= entry.totalLength()
	}

	c.idx.remove(e.key)

	if err := writeRemoveRecord(c.journalWriter, e.key); err != nil {
		return err
	}

	return c.flushJournalAfterEditLocked()
}

func (c *Cache) publishEditLocked(e *Editor, entry *Entry) error {
	newLengths := append([]int64(nil), entry.Lengths...)

	for i, f := range e.files {
		if f == nil {
			continue
		}

		dp := dirtyPath(c.dir, e.key, i)

		info, err := c.fs.Stat(dp)
		if err != nil {
			return err
		}

		if err := c.fs.Rename(dp, cleanPath(c.dir, e.key, i)); err != nil {
			return err
		}

		newLengths[i] = info.Size()
	}

	old := entry.totalLength()
	entry.Lengths = newLengths
	entry.Readable = true
	entry.CurrentEditor = nil
	c.size += entry.totalLength() - old

	if err := writeCleanRecord(c.journalWriter, e.key, newLengths); err != nil {
		return err
	}

	if err := c.flushJournalAfterEditLocked(); err != nil {
		return err
	}

	if c.size > c.maxSize || c.journalRebuildRequiredLocked() {
		c.scheduleTrim()
	}

	return nil
}

func (c *Cache) flushJournalAfterEditLocked() error {
	if err := c.journalWriter.Flush(); err != nil {
		return err
	}

	c.redundantOpCount++

	if c.journalRebuildRequiredLocked() {
		c.scheduleTrim()
	}

	return nil
}
