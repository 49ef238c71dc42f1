package iterators

import (
	"bytes"
	"errors"

	"reduction.dev/mergekv/dkv/kv"
)

// LsmIterator is the cursor returned to database readers. It surfaces exactly
// one version, the newest, of each user key. Keys are returned without their
// sequence numbers.
//
// A tombstone hides its user key entirely: the tombstone and every older
// version of the key are skipped, including versions from lower priority
// sources. Skipping only the tombstone entry would let an older value of a
// deleted key reappear.
type LsmIterator[I StorageIterator] struct {
	inner *MergeIterator[I]
}

// NewLsmIterator takes ownership of the merge and positions the cursor at
// the first live entry.
func NewLsmIterator[I StorageIterator](inner *MergeIterator[I]) (*LsmIterator[I], error) {
	it := &LsmIterator[I]{inner: inner}
	if err := it.skipTombstones(); err != nil {
		return nil, errors.Join(err, inner.Close())
	}
	return it, nil
}

func (it *LsmIterator[I]) Valid() bool {
	return it.inner.Valid()
}

func (it *LsmIterator[I]) Key() []byte {
	return it.inner.Key().User
}

func (it *LsmIterator[I]) Value() []byte {
	return it.inner.Value()
}

// SeqNum returns the sequence number of the current version.
func (it *LsmIterator[I]) SeqNum() uint64 {
	return it.inner.Key().SeqNum
}

func (it *LsmIterator[I]) Next() error {
	assertValid("LsmIterator.Next", it.Valid())

	// The merge only removes duplicates of the full key. Older versions of
	// the same user key carry other sequence numbers and are skipped here.
	if err := it.skipUserKey(bytes.Clone(it.Key())); err != nil {
		return err
	}
	return it.skipTombstones()
}

func (it *LsmIterator[I]) Close() error {
	return it.inner.Close()
}

// skipTombstones moves off of deleted keys. A tombstone hides every older
// version of its user key, so those versions are skipped as well.
func (it *LsmIterator[I]) skipTombstones() error {
	for it.inner.Valid() && kv.IsTombstone(it.inner.Value()) {
		lsmTombstonesSkipped.Inc()
		if err := it.skipUserKey(bytes.Clone(it.Key())); err != nil {
			return err
		}
	}
	return nil
}

// skipUserKey advances the merge at least once and then until it leaves the
// given user key.
func (it *LsmIterator[I]) skipUserKey(userKey []byte) error {
	if err := it.inner.Next(); err != nil {
		return err
	}
	for it.inner.Valid() && bytes.Equal(it.inner.Key().User, userKey) {
		lsmVersionsCollapsed.Inc()
		if err := it.inner.Next(); err != nil {
			return err
		}
	}
	return nil
}

var _ Iterator[[]byte] = (*LsmIterator[StorageIterator])(nil)
