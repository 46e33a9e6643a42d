package diskcache

import "os"

// scheduleTrim signals the background trimmer, coalescing with any already-
// pending signal: the channel is a single-slot queue, so a send that would
// block is simply dropped as redundant.
func (c *Cache) scheduleTrim() {
	select {
	case c.trimCh <- struct{}{}:
	default:
	}
}

// trimLoop runs for the lifetime of the cache, performing one trim cycle
// per signal received on trimCh until trimDone is closed by Close.
func (c *Cache) trimLoop() {
	defer c.trimWG.Done()

	for {
		select {
		case <-c.trimCh:
			c.runTrimCycle()
		case <-c.trimDone:
			return
		}
	}
}

func (c *Cache) runTrimCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if err := c.trimToSizeLocked(); err != nil {
		c.events.Event(Event{Kind: EventBackgroundError, Err: err, Detail: "trim"})

		return
	}

	if c.journalRebuildRequiredLocked() {
		if err := c.rebuildJournalLocked(); err != nil {
			c.events.Event(Event{Kind: EventBackgroundError, Err: err, Detail: "rebuild"})
		}
	}
}

// trimToSizeLocked evicts least-recently-used entries until the cache's
// total size is at or below maxSize, skipping any entry currently being
// edited since its files cannot be deleted out from under the editor.
func (c *Cache) trimToSizeLocked() error {
	for c.size > c.maxSize {
		victim := c.findEvictionCandidateLocked()
		if victim == nil {
			break
		}

		if err := c.evictLocked(victim); err != nil {
			return err
		}
	}

	return nil
}

func (c *Cache) findEvictionCandidateLocked() *Entry {
	var found *Entry

	c.idx.all(func(e *Entry) bool {
		if e.CurrentEditor == nil {
			found = e

			return false
		}

		return true
	})

	return found
}

func (c *Cache) evictLocked(e *Entry) error {
	for i := range int(c.valueCount) {
		if err := c.fs.Remove(cleanPath(c.dir, e.Key, i)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	c.size -= e.totalLength()
	c.idx.remove(e.Key)

	if err := writeRemoveRecord(c.journalWriter, e.Key); err != nil {
		return err
	}

	if err := c.journalWriter.Flush(); err != nil {
		return err
	}

	c.redundantOpCount++

	c.events.Event(Event{Kind: EventTrimCycle, Key: e.Key})

	return nil
}
