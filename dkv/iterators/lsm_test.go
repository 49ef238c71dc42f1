package iterators_test

import (
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/iterators"
)

func newLsm(t *testing.T, sources ...iterators.StorageIterator) *iterators.LsmIterator[iterators.StorageIterator] {
	t.Helper()
	it, err := iterators.NewLsmIterator(iterators.NewMergeIterator(sources))
	require.NoError(t, err)
	return it
}

func TestLsmIterator_TombstoneHidesOlderSource(t *testing.T) {
	it := newLsm(t, source("a", ""), source("a", "old"))
	assert.False(t, it.Valid())
}

func TestLsmIterator_OnlyTombstones(t *testing.T) {
	it := newLsm(t, source("a", "", "b", ""), source("b", ""))
	assert.False(t, it.Valid())
}

func TestLsmIterator_SkipsTombstones(t *testing.T) {
	it := newLsm(t,
		source("a", "", "c", "3", "e", ""),
		source("a", "1", "b", "2", "d", "", "f", "6"),
	)

	assert.Equal(t, []pair{{"b", "2"}, {"c", "3"}, {"f", "6"}}, collect(t, it))
}

func TestLsmIterator_CollapsesVersionsOfTheSameUserKey(t *testing.T) {
	// The merge surfaces both versions because their sequence numbers differ.
	it := newLsm(t, iterators.NewSliceIterator([]iterators.KeyValue{
		versioned("k", 2, "v1"),
		versioned("k", 1, "v2"),
		versioned("m", 1, "v3"),
	}))

	require.True(t, it.Valid())
	assert.Equal(t, []byte("k"), it.Key(), "key has no sequence number")
	assert.Equal(t, []byte("v1"), it.Value())

	assert.Equal(t, []pair{{"k", "v1"}, {"m", "v3"}}, collect(t, it))
}

func TestLsmIterator_NewerTombstoneHidesOlderVersions(t *testing.T) {
	it := newLsm(t,
		iterators.NewSliceIterator([]iterators.KeyValue{versioned("a", 5, "")}),
		iterators.NewSliceIterator([]iterators.KeyValue{
			versioned("a", 3, "v"),
			versioned("b", 3, "w"),
		}),
	)

	assert.Equal(t, []pair{{"b", "w"}}, collect(t, it))
}

func TestLsmIterator_CountsSkippedEntries(t *testing.T) {
	iterators.ResetMetrics()
	it := newLsm(t,
		iterators.NewSliceIterator([]iterators.KeyValue{versioned("a", 5, "")}),
		iterators.NewSliceIterator([]iterators.KeyValue{
			versioned("a", 3, "v"),
			versioned("b", 3, "w"),
		}),
	)

	assert.Equal(t, []pair{{"b", "w"}}, collect(t, it))
	assert.Equal(t, uint64(1), metrics.GetOrCreateCounter("lsm_tombstones_skipped").Get())
	assert.Equal(t, uint64(1), metrics.GetOrCreateCounter("lsm_versions_collapsed").Get(), "a@3 hidden by the tombstone")
}

func TestLsmIterator_NewerValueOverridesOlderTombstone(t *testing.T) {
	it := newLsm(t,
		iterators.NewSliceIterator([]iterators.KeyValue{versioned("a", 9, "back")}),
		iterators.NewSliceIterator([]iterators.KeyValue{versioned("a", 4, "")}),
	)

	assert.Equal(t, []pair{{"a", "back"}}, collect(t, it))
}

func TestLsmIterator_ErrorSkippingLeadingTombstones(t *testing.T) {
	merge := iterators.NewMergeIterator([]iterators.StorageIterator{
		failAfter(source("a", "", "b", "2"), 1),
	})

	_, err := iterators.NewLsmIterator(merge)
	assert.ErrorIs(t, err, errSourceRead)
}

func TestLsmIterator_ErrorOnNext(t *testing.T) {
	it := newLsm(t, failAfter(source("a", "1", "b", "2"), 1))

	require.True(t, it.Valid())
	assert.ErrorIs(t, it.Next(), errSourceRead)
}

func TestLsmIterator_Close(t *testing.T) {
	s := failAfter(source("a", "1"), -1)
	it := newLsm(t, s)
	require.NoError(t, it.Close())
	assert.True(t, s.closed)
}
