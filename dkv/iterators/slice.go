package iterators

import (
	"slices"

	"reduction.dev/mergekv/dkv/kv"
)

// KeyValue is one entry of a SliceIterator.
type KeyValue struct {
	Key   kv.Key
	Value []byte
}

// SliceIterator is a source over entries that are already in memory. The
// entries must be sorted by kv.CompareKeys without duplicate keys.
type SliceIterator struct {
	entries []KeyValue
	pos     int
}

func NewSliceIterator(entries []KeyValue) *SliceIterator {
	return &SliceIterator{entries: entries}
}

// NewSortedSliceIterator sorts the entries before iterating.
func NewSortedSliceIterator(entries []KeyValue) *SliceIterator {
	entries = slices.Clone(entries)
	slices.SortFunc(entries, func(a, b KeyValue) int {
		return kv.CompareKeys(a.Key, b.Key)
	})
	return NewSliceIterator(entries)
}

func (s *SliceIterator) Valid() bool {
	return s.pos < len(s.entries)
}

func (s *SliceIterator) Key() kv.Key {
	return s.entries[s.pos].Key
}

func (s *SliceIterator) Value() []byte {
	return s.entries[s.pos].Value
}

func (s *SliceIterator) Next() error {
	if s.pos < len(s.entries) {
		s.pos++
	}
	return nil
}

func (s *SliceIterator) Close() error {
	return nil
}

var _ StorageIterator = (*SliceIterator)(nil)
