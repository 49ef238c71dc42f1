package iterators

import (
	"errors"
	"fmt"
)

// ErrIteratorBroken is returned by every Next call after a FusedIterator's
// wrapped iterator failed.
var ErrIteratorBroken = errors.New("iterator is invalid")

// FusedIterator contains iterator failures. Once the wrapped iterator fails
// to advance, the FusedIterator is permanently invalid and every further Next
// call fails, whatever state the wrapped iterator was left in. Calling Next on
// an exhausted FusedIterator is a no-op.
type FusedIterator[K any] struct {
	iter   Iterator[K]
	cause  error // first failure of the wrapped iterator
	broken error // returned by Next once broken
}

func NewFusedIterator[K any](iter Iterator[K]) *FusedIterator[K] {
	return &FusedIterator[K]{iter: iter}
}

func (f *FusedIterator[K]) Valid() bool {
	if f.broken != nil {
		return false
	}
	return f.iter.Valid()
}

func (f *FusedIterator[K]) Key() K {
	return f.iter.Key()
}

func (f *FusedIterator[K]) Value() []byte {
	return f.iter.Value()
}

// Next returns the wrapped iterator's failure the first time it happens and
// an error matching both ErrIteratorBroken and that failure afterwards.
func (f *FusedIterator[K]) Next() error {
	if f.broken != nil {
		return f.broken
	}
	if !f.iter.Valid() {
		return nil
	}

	if err := f.iter.Next(); err != nil {
		fusedBreaks.Inc()
		f.cause = err
		f.broken = fmt.Errorf("%w: %w", ErrIteratorBroken, err)
		return err
	}
	return nil
}

// Err returns the failure that broke the iterator, or nil.
func (f *FusedIterator[K]) Err() error {
	return f.cause
}

func (f *FusedIterator[K]) Close() error {
	return f.iter.Close()
}

var _ Iterator[[]byte] = (*FusedIterator[[]byte])(nil)
