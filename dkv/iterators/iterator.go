// Package iterators merges sorted key/value sources into the single ordered
// stream that database reads observe.
//
// Every layer satisfies the same pull-based contract, so sources, merges and
// cursors compose:
//
//	for it.Valid() {
//	    key, value := it.Key(), it.Value()
//	    // process key, value
//	    if err := it.Next(); err != nil {
//	        // handle error
//	    }
//	}
package iterators

import "reduction.dev/mergekv/dkv/kv"

// Iterator is a forward cursor over entries in non-decreasing key order.
type Iterator[K any] interface {
	// Valid reports whether the iterator is positioned at an entry. It has no
	// side effects.
	Valid() bool

	// Key returns the key at the current position. Behavior is undefined if
	// Valid returns false.
	Key() K

	// Value returns the value at the current position. An empty value is a
	// tombstone. Behavior is undefined if Valid returns false.
	Value() []byte

	// Next advances to the next entry or leaves the iterator invalid when
	// there are no more entries. Callers must only call Next on a valid
	// iterator unless the implementation states otherwise.
	Next() error

	// Close releases the iterator and any sources it owns.
	Close() error
}

// StorageIterator is a source of versioned entries. Keys produced by a single
// StorageIterator are strictly increasing.
type StorageIterator = Iterator[kv.Key]
