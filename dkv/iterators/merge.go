package iterators

import (
	"cmp"
	"errors"

	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/util/ds"
)

// MergeIterator performs a k-way merge over sources of the same type. The
// position of a source in the constructor's slice is its priority: when two
// sources hold an equal key, the source with the smaller index wins and the
// other source is advanced past that key without its value being surfaced.
//
// Sources live in an arena and the heap orders arena indices, so the current
// source is just a distinguished index outside of the heap. Every source in
// the heap is positioned at a key >= the current key, and sources sharing
// the current key have a larger index than current.
type MergeIterator[I StorageIterator] struct {
	sources []I
	heap    *ds.Heap[int]
	current int // -1 when exhausted
}

// NewMergeIterator takes ownership of the sources. Sources that are already
// invalid never enter the heap but are still closed with the merge.
func NewMergeIterator[I StorageIterator](sources []I) *MergeIterator[I] {
	m := &MergeIterator[I]{
		sources: sources,
		current: -1,
	}
	m.heap = ds.NewHeap(m.compare, len(sources))

	for i, s := range sources {
		if s.Valid() {
			m.heap.Push(i)
		}
	}

	if top, ok := m.heap.Pop(); ok {
		m.current = top
	}
	return m
}

// compare orders arena indices by (key asc, index asc).
func (m *MergeIterator[I]) compare(a, b int) int {
	if c := kv.CompareKeys(m.sources[a].Key(), m.sources[b].Key()); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

func (m *MergeIterator[I]) Valid() bool {
	return m.current >= 0 && m.sources[m.current].Valid()
}

func (m *MergeIterator[I]) Key() kv.Key {
	assertValid("MergeIterator.Key", m.Valid())
	return m.sources[m.current].Key()
}

func (m *MergeIterator[I]) Value() []byte {
	assertValid("MergeIterator.Value", m.Valid())
	return m.sources[m.current].Value()
}

// Next advances past the current key. After an error is returned the merge
// state is unspecified; wrap the iterator in a FusedIterator to make further
// use safe.
func (m *MergeIterator[I]) Next() error {
	assertValid("MergeIterator.Next", m.Valid())
	cur := m.sources[m.current]

	// Lower priority sources holding the current key have stale values for it.
	// Step each of them past the key before it can be compared again.
	for {
		top, ok := m.heap.Peek()
		if !ok {
			break
		}
		stale := m.sources[top]
		if !stale.Key().Equal(cur.Key()) {
			break
		}

		mergeDuplicatesDrained.Inc()
		if err := stale.Next(); err != nil {
			m.heap.Pop()
			return err
		}
		if !stale.Valid() {
			m.heap.Pop()
			continue
		}
		m.heap.FixTop()
	}

	if err := cur.Next(); err != nil {
		return err
	}

	if !cur.Valid() {
		if top, ok := m.heap.Pop(); ok {
			m.current = top
		} else {
			m.current = -1
		}
		return nil
	}

	// Hand the current source to the heap when another source now holds a
	// smaller key or the same key with a higher priority.
	if top, ok := m.heap.Peek(); ok && m.compare(top, m.current) < 0 {
		m.current = m.heap.ReplaceTop(m.current)
		mergeHeapSwaps.Inc()
	}

	return nil
}

// NumActiveIterators returns the number of sources that still have entries.
func (m *MergeIterator[I]) NumActiveIterators() int {
	n := m.heap.Size()
	if m.current >= 0 {
		n++
	}
	return n
}

// Close closes every source given to the merge.
func (m *MergeIterator[I]) Close() error {
	var errs []error
	for _, s := range m.sources {
		errs = append(errs, s.Close())
	}
	m.current = -1
	return errors.Join(errs...)
}

var _ StorageIterator = (*MergeIterator[StorageIterator])(nil)
