package diskcache

import "container/list"

// Entry is one logical cache item: N slot values bound to a key.
type Entry struct {
	Key           string
	Lengths       []int64
	Readable      bool
	CurrentEditor *Editor // nil if no edit in progress

	elem *list.Element // position in the index's access order; nil if detached
}

// totalLength returns the sum of the entry's slot lengths.
func (e *Entry) totalLength() int64 {
	var n int64
	for _, l := range e.Lengths {
		n += l
	}

	return n
}

// index is an access-ordered mapping from key to *Entry: a hash map for O(1)
// lookup paired with a doubly linked list recording touch order, the list's
// front holding the least-recently-used entry and its back the most recently
// touched. The standard library has no ordered map, so entries own their list
// position directly rather than indirecting through a second lookup.
type index struct {
	entries map[string]*Entry
	order   *list.List // element.Value is *Entry
}

func newIndex() *index {
	return &index{
		entries: make(map[string]*Entry),
		order:   list.New(),
	}
}

// get returns the entry for key, if any, and moves it to the most-recently-
// used end. Returns (nil, false) if the key is absent, without modifying the
// order.
func (idx *index) get(key string) (*Entry, bool) {
	e, ok := idx.entries[key]
	if !ok {
		return nil, false
	}

	idx.order.MoveToBack(e.elem)

	return e, true
}

// peek returns the entry for key without touching its access order.
func (idx *index) peek(key string) (*Entry, bool) {
	e, ok := idx.entries[key]

	return e, ok
}

// put inserts entry at the most-recently-used end, replacing any existing
// entry for the same key.
func (idx *index) put(e *Entry) {
	if existing, ok := idx.entries[e.Key]; ok {
		idx.order.Remove(existing.elem)
	}

	e.elem = idx.order.PushBack(e)
	idx.entries[e.Key] = e
}

// touch moves an already-indexed entry to the most-recently-used end without
// allocating or looking it up by key again.
func (idx *index) touch(e *Entry) {
	idx.order.MoveToBack(e.elem)
}

// remove deletes key from the index and returns its entry, if any.
func (idx *index) remove(key string) (*Entry, bool) {
	e, ok := idx.entries[key]
	if !ok {
		return nil, false
	}

	idx.order.Remove(e.elem)
	delete(idx.entries, key)
	e.elem = nil

	return e, true
}

// len returns the number of entries currently indexed.
func (idx *index) len() int {
	return len(idx.entries)
}

// all iterates every entry from least- to most-recently-used, stopping early
// if fn returns false.
func (idx *index) all(fn func(*Entry) bool) {
	for el := idx.order.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*Entry)) {
			return
		}
	}
}
