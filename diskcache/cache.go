package diskcache

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"

	cfs "github.com/calvinalkan/diskcache/internal/fs"
)

// journalRebuildThreshold is the minimum number of redundant journal records
// that must accumulate before a rebuild is considered, mirroring the
// original DiskLruCache's fixed threshold.
const journalRebuildThreshold = 2000

// Options configures a call to Open. AppVersion and ValueCount are baked
// into the journal header: reopening a directory with a different value for
// either is treated as a format change and the directory is wiped and
// reinitialized from scratch.
type Options struct {
	// AppVersion is an opaque version stamp, typically bumped by the caller
	// whenever the meaning of a cached value changes.
	AppVersion int32

	// ValueCount is the number of byte-blob slots per entry.
	ValueCount int32

	// MaxSize is the soft ceiling on the sum of all entries' slot lengths.
	// Exceeding it schedules a background trim down to MaxSize.
	MaxSize int64

	// FS is the filesystem the cache operates on. Defaults to the real
	// filesystem.
	FS cfs.FS

	// Events receives diagnostic notifications (corruption recovery, trim
	// cycles, journal rebuilds, background errors). Defaults to a sink that
	// discards everything.
	Events EventSink
}

// Cache is a bounded, filesystem-backed LRU cache for opaque byte blobs
// keyed by string. Every public method is safe for concurrent use; a single
// mutex guards all cache bookkeeping, and only the editor/snapshot slot I/O
// happens outside it.
type Cache struct {
	dir        string
	appVersion int32
	valueCount int32
	maxSize    int64
	fs         cfs.FS
	events     EventSink

	mu               sync.Mutex
	idx              *index
	size             int64
	redundantOpCount int64
	journalFile      cfs.File
	journalWriter    *bufio.Writer
	closed           bool
	lock             cfs.Locker

	trimCh   chan struct{}
	trimDone chan struct{}
	trimWG   sync.WaitGroup
}

// Open opens (creating if necessary) a cache rooted at dir. A held
// directory lock prevents a second process or Cache from opening the same
// directory concurrently; the lock is released by Close or Delete.
//
// If dir holds a journal from a prior run, it is replayed to rebuild the
// in-memory index. A journal that fails to parse, or whose recorded
// AppVersion/ValueCount no longer matches opts, is treated as corruption:
// the directory is wiped and the cache starts fresh, after emitting an
// EventCorruptionRecovered event.
func Open(dir string, opts Options) (*Cache, error) {
	if opts.ValueCount <= 0 {
		return nil, ErrInvalidValueCount
	}

	if opts.MaxSize <= 0 {
		return nil, ErrInvalidMaxSize
	}

	fsImpl := opts.FS
	if fsImpl == nil {
		fsImpl = cfs.NewReal()
	}

	events := opts.Events
	if events == nil {
		events = noopEventSink{}
	}

	lk, err := fsImpl.Lock(lockPath(dir))
	if err != nil {
		return nil, fmt.Errorf("diskcache: acquiring lock: %w", err)
	}

	c := &Cache{
		dir:        dir,
		appVersion: opts.AppVersion,
		valueCount: opts.ValueCount,
		maxSize:    opts.MaxSize,
		fs:         fsImpl,
		events:     events,
		idx:        newIndex(),
		lock:       lk,
		trimCh:     make(chan struct{}, 1),
		trimDone:   make(chan struct{}),
	}

	if err := c.loadOrInit(); err != nil {
		_ = lk.Close()

		return nil, err
	}

	c.trimWG.Add(1)

	go c.trimLoop()

	return c, nil
}

func (c *Cache) loadOrInit() error {
	exists, err := c.fs.Exists(journalPath(c.dir))
	if err != nil {
		return err
	}

	if exists {
		replayErr := c.replay()
		if replayErr == nil {
			return c.openAppend()
		}

		if !errors.Is(replayErr, errCorruptJournal) {
			return replayErr
		}

		c.events.Event(Event{Kind: EventCorruptionRecovered, Err: replayErr, Detail: "journal failed to parse or is stale"})

		if err := c.fs.RemoveAll(c.dir); err != nil {
			return fmt.Errorf("diskcache: wiping corrupt cache dir: %w", err)
		}

		c.idx = newIndex()
		c.size = 0
		c.redundantOpCount = 0
	}

	return c.freshInit()
}

// replay reads and applies every record in the existing journal, then runs
// processJournal to clean up any dangling edit left by a prior crash.
func (c *Cache) replay() error {
	f, err := c.fs.Open(journalPath(c.dir))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)

	if _, err := readJournalHeader(br, c.appVersion, c.valueCount); err != nil {
		return err
	}

	var total int64

	err = readRecords(br, c.valueCount, func(rec journalRecord) error {
		total++

		c.applyRecord(rec)

		return nil
	})
	if err != nil {
		return err
	}

	if err := c.processJournal(); err != nil {
		return err
	}

	c.redundantOpCount = total - int64(c.idx.len())
	if c.redundantOpCount < 0 {
		c.redundantOpCount = 0
	}

	return nil
}

// applyRecord folds one journal record into the in-memory index. A DIRTY
// record attaches a placeholder, non-nil *Editor so that, after the full
// replay, any entry still carrying a non-nil CurrentEditor is unambiguously
// a dangling edit: replay is strictly linear and only a later CLEAN or
// REMOVE for the same key clears it.
func (c *Cache) applyRecord(rec journalRecord) {
	switch rec.Op {
	case opClean:
		e, ok := c.idx.peek(rec.Key)
		if !ok {
			e = &Entry{Key: rec.Key}
			c.idx.put(e)
		}

		e.Lengths = rec.Lengths
		e.Readable = true
		e.CurrentEditor = nil

	case opDirty:
		e, ok := c.idx.peek(rec.Key)
		if !ok {
			e = &Entry{Key: rec.Key, Lengths: make([]int64, c.valueCount)}
			c.idx.put(e)
		}

		e.CurrentEditor = &Editor{}

	case opRemove:
		c.idx.remove(rec.Key)

	case opRead:
		if e, ok := c.idx.peek(rec.Key); ok {
			c.idx.touch(e)
		}
	}
}

// processJournal discards a stale rebuild tmp file left by a crash mid-
// rebuild, deletes the on-disk files of any dangling edit (a DIRTY record
// with no later CLEAN/REMOVE), and recomputes the cache's total size from
// the surviving entries.
func (c *Cache) processJournal() error {
	if err := c.fs.Remove(journalTmpPath(c.dir)); err != nil && !os.IsNotExist(err) {
		return err
	}

	var dangling []string

	c.idx.all(func(e *Entry) bool {
		if e.CurrentEditor != nil {
			dangling = append(dangling, e.Key)
		}

		return true
	})

	for _, key := range dangling {
		c.idx.remove(key)

		for i := range int(c.valueCount) {
			if err := c.fs.Remove(cleanPath(c.dir, key, i)); err != nil && !os.IsNotExist(err) {
				return err
			}

			if err := c.fs.Remove(dirtyPath(c.dir, key, i)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}

	var size int64

	c.idx.all(func(e *Entry) bool {
		size += e.totalLength()

		return true
	})

	c.size = size

	return nil
}

func (c *Cache) freshInit() error {
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	tmp, err := c.fs.Create(journalTmpPath(c.dir))
	if err != nil {
		return err
	}

	if err := writeJournalHeader(tmp, journalHeader{AppVersion: c.appVersion, ValueCount: c.valueCount}); err != nil {
		_ = tmp.Close()

		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := c.fs.Rename(journalTmpPath(c.dir), journalPath(c.dir)); err != nil {
		return err
	}

	return c.openAppend()
}

func (c *Cache) openAppend() error {
	f, err := c.fs.OpenFile(journalPath(c.dir), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	c.journalFile = f
	c.journalWriter = bufio.NewWriter(f)

	return nil
}

// validateKey reports whether key is usable: non-empty and free of spaces,
// CR, or LF, all of which would be ambiguous in the journal's framing.
func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	for i := range len(key) {
		switch key[i] {
		case ' ', '\n', '\r':
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	return nil
}

// Get returns a snapshot of key's currently published value, or (nil, nil)
// if key is absent or is being published for the first time (not yet
// readable).
func (c *Cache) Get(key string) (*Snapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	entry, ok := c.idx.get(key)
	if !ok || !entry.Readable {
		return nil, nil
	}

	files := make([]cfs.File, c.valueCount)

	for i := range files {
		f, err := c.fs.Open(cleanPath(c.dir, key, i))
		if err != nil {
			closeAll(files[:i])

			if os.IsNotExist(err) {
				return nil, nil
			}

			return nil, err
		}

		files[i] = f
	}

	if err := writeReadRecord(c.journalWriter, key); err != nil {
		closeAll(files)

		return nil, err
	}

	if err := c.journalWriter.Flush(); err != nil {
		closeAll(files)

		return nil, err
	}

	c.redundantOpCount++

	if c.journalRebuildRequiredLocked() {
		c.scheduleTrim()
	}

	lengths := append([]int64(nil), entry.Lengths...)

	return &Snapshot{key: key, lengths: lengths, files: files}, nil
}

// Edit begins a write transaction for key, returning (nil, nil) if key is
// already being edited by someone else.
func (c *Cache) Edit(key string) (*Editor, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	entry, existed := c.idx.get(key)

	if existed {
		if entry.CurrentEditor != nil {
			return nil, nil
		}
	} else {
		entry = &Entry{Key: key, Lengths: make([]int64, c.valueCount)}
		c.idx.put(entry)
	}

	ed := &Editor{cache: c, entry: entry, key: key, files: make([]cfs.File, c.valueCount)}

	if err := writeDirtyRecord(c.journalWriter, key); err != nil {
		if !existed {
			c.idx.remove(key)
		}

		return nil, err
	}

	if err := c.journalWriter.Flush(); err != nil {
		if !existed {
			c.idx.remove(key)
		}

		return nil, err
	}

	c.redundantOpCount++
	entry.CurrentEditor = ed

	return ed, nil
}

// Remove deletes key's published value. It reports false if key was absent
// or currently being edited.
func (c *Cache) Remove(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}

	entry, ok := c.idx.peek(key)
	if !ok || entry.CurrentEditor != nil {
		return false, nil
	}

	for i := range int(c.valueCount) {
		if err := c.fs.Remove(cleanPath(c.dir, key, i)); err != nil && !os.IsNotExist(err) {
			return false, err
		}
	}

	c.size -= entry.totalLength()
	c.idx.remove(key)

	if err := writeRemoveRecord(c.journalWriter, key); err != nil {
		return false, err
	}

	if err := c.journalWriter.Flush(); err != nil {
		return false, err
	}

	c.redundantOpCount++

	if c.journalRebuildRequiredLocked() {
		c.scheduleTrim()
	}

	return true, nil
}

// Flush runs a synchronous trim cycle and flushes buffered journal writes to
// the underlying file.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if err := c.trimToSizeLocked(); err != nil {
		return err
	}

	return c.journalWriter.Flush()
}

// Close aborts any editors still in progress, flushes and closes the
// journal, and releases the directory lock. Close is idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()

		return nil
	}

	var openEditors []*Editor

	c.idx.all(func(e *Entry) bool {
		if e.CurrentEditor != nil {
			openEditors = append(openEditors, e.CurrentEditor)
		}

		return true
	})

	c.mu.Unlock()

	for _, ed := range openEditors {
		_ = ed.Abort()
	}

	close(c.trimDone)
	c.trimWG.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	var err error

	if trimErr := c.trimToSizeLocked(); trimErr != nil && err == nil {
		err = trimErr
	}

	if c.journalWriter != nil {
		if ferr := c.journalWriter.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}

	if c.journalFile != nil {
		if cerr := c.journalFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	c.journalFile = nil
	c.journalWriter = nil
	c.closed = true

	if c.lock != nil {
		if lerr := c.lock.Close(); lerr != nil && err == nil {
			err = lerr
		}
	}

	return err
}

// Delete closes the cache and recursively removes its directory.
func (c *Cache) Delete() error {
	closeErr := c.Close()

	if err := c.fs.RemoveAll(c.dir); err != nil {
		return err
	}

	return closeErr
}

// Size returns the current sum of every entry's slot lengths.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.size
}

func (c *Cache) journalRebuildRequiredLocked() bool {
	return c.redundantOpCount >= journalRebuildThreshold && c.redundantOpCount >= int64(c.idx.len())
}

// rebuildJournalLocked rewrites the journal as a compact snapshot of the
// current index (one CLEAN per readable entry, one DIRTY per entry still
// being edited) and atomically swaps it in. The rename is the commit point:
// a crash before it leaves the old journal untouched.
func (c *Cache) rebuildJournalLocked() error {
	if err := c.journalWriter.Flush(); err != nil {
		return err
	}

	if err := c.journalFile.Close(); err != nil {
		return err
	}

	tmp, err := c.fs.Create(journalTmpPath(c.dir))
	if err != nil {
		return err
	}

	if err := writeJournalHeader(tmp, journalHeader{AppVersion: c.appVersion, ValueCount: c.valueCount}); err != nil {
		_ = tmp.Close()

		return err
	}

	liveCount := c.idx.len()

	var writeErr error

	c.idx.all(func(e *Entry) bool {
		if e.CurrentEditor != nil {
			writeErr = writeDirtyRecord(tmp, e.Key)
		} else {
			writeErr = writeCleanRecord(tmp, e.Key, e.Lengths)
		}

		return writeErr == nil
	})

	if writeErr != nil {
		_ = tmp.Close()

		return writeErr
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := c.fs.Rename(journalTmpPath(c.dir), journalPath(c.dir)); err != nil {
		return err
	}

	if err := c.openAppend(); err != nil {
		return err
	}

	c.redundantOpCount = 0

	c.events.Event(Event{Kind: EventRebuild, Detail: fmt.Sprintf("live=%d", liveCount)})

	return nil
}

func closeAll(files []cfs.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
