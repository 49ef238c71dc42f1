package iterators_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
)

var errSourceRead = errors.New("source read failed")

// source builds a slice source from alternating key and value strings. All
// entries share sequence number 0.
func source(kvs ...string) *iterators.SliceIterator {
	if len(kvs)%2 != 0 {
		panic("source needs key/value pairs")
	}
	entries := make([]iterators.KeyValue, 0, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		entries = append(entries, iterators.KeyValue{
			Key:   kv.NewKey([]byte(kvs[i]), 0),
			Value: []byte(kvs[i+1]),
		})
	}
	return iterators.NewSliceIterator(entries)
}

func versioned(key string, seqNum uint64, value string) iterators.KeyValue {
	return iterators.KeyValue{Key: kv.NewKey([]byte(key), seqNum), Value: []byte(value)}
}

// failingSource wraps a source and fails on the nth call to Next (1-based).
type failingSource struct {
	*iterators.SliceIterator
	failOn    int
	nextCalls int
	closed    bool
}

func failAfter(it *iterators.SliceIterator, failOn int) *failingSource {
	return &failingSource{SliceIterator: it, failOn: failOn}
}

func (f *failingSource) Next() error {
	f.nextCalls++
	if f.nextCalls == f.failOn {
		return fmt.Errorf("next call %d: %w", f.nextCalls, errSourceRead)
	}
	return f.SliceIterator.Next()
}

func (f *failingSource) Close() error {
	f.closed = true
	return nil
}

type pair struct {
	Key   string
	Value string
}

// collect drains an iterator that reports raw keys.
func collect(t *testing.T, it iterators.Iterator[[]byte]) []pair {
	t.Helper()
	var got []pair
	for it.Valid() {
		got = append(got, pair{string(it.Key()), string(it.Value())})
		require.NoError(t, it.Next())
	}
	return got
}

// collectStorage drains a storage iterator, dropping sequence numbers.
func collectStorage(t *testing.T, it iterators.StorageIterator) []pair {
	t.Helper()
	var got []pair
	for it.Valid() {
		got = append(got, pair{string(it.Key().User), string(it.Value())})
		require.NoError(t, it.Next())
	}
	return got
}
