// Package dkvtest has helpers for testing the database and its tables.
package dkvtest

import (
	"bytes"
	"fmt"
	"iter"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/sst"
	"reduction.dev/mergekv/dkv/storage"
)

type testingT interface {
	Errorf(format string, args ...any)
	FailNow()
	Helper()
}

type entryView struct {
	Key     string
	Value   string
	Deleted bool
}

func viewOf(e kv.Entry) entryView {
	return entryView{Key: string(e.Key()), Value: string(e.Value()), Deleted: e.IsDelete()}
}

// EntryEqual asserts that two entries of any concrete type have the same key,
// value and delete flag.
func EntryEqual(t testingT, want, got kv.Entry) {
	t.Helper()
	assert.Equal(t, viewOf(want), viewOf(got))
}

// TestEntry is a kv.Entry to build test data with.
type TestEntry struct {
	key      []byte
	value    []byte
	seqNum   uint64
	isDelete bool
}

func NewKVEntry(key string, value string) *TestEntry {
	return &TestEntry{key: []byte(key), value: []byte(value)}
}

func (e *TestEntry) IsDelete() bool { return e.isDelete }
func (e *TestEntry) Key() []byte    { return e.key }
func (e *TestEntry) Value() []byte  { return e.value }
func (e *TestEntry) SeqNum() uint64 { return e.seqNum }

var _ kv.Entry = (*TestEntry)(nil)

// EntryList is a list of entries with the total size of their table rows.
type EntryList struct {
	Entries []kv.Entry
	Size    int
}

func (l *EntryList) At(index int) kv.Entry {
	return l.Entries[index]
}

func collectList(entries iter.Seq[kv.Entry]) *EntryList {
	l := &EntryList{}
	for e := range entries {
		l.Entries = append(l.Entries, e)
		l.Size += int(sst.RowSize(e.Key(), e.Value()))
	}
	return l
}

// RandomEntriesList returns entries with random 10 digit keys equal to their
// values.
func RandomEntriesList(length int) *EntryList {
	return collectList(RandomEntriesSeq(length))
}

func RandomEntriesSeq(length int) iter.Seq[kv.Entry] {
	return func(yield func(kv.Entry) bool) {
		for range length {
			digits := fmt.Appendf(nil, "%010d", rand.Uint32())
			if !yield(&TestEntry{key: digits, value: digits}) {
				return
			}
		}
	}
}

// SequentialEntriesList returns entries with keys 0 to length-1, zero padded
// to the width of length.
func SequentialEntriesList(length int) *EntryList {
	return collectList(SequentialEntriesSeq(length, 0))
}

// SequentialEntriesSeq is like SequentialEntriesList with sequence numbers
// counting up from seqNum.
func SequentialEntriesSeq(length int, seqNum uint64) iter.Seq[kv.Entry] {
	width := len(strconv.Itoa(length))
	return func(yield func(kv.Entry) bool) {
		for i := range length {
			digits := fmt.Appendf(nil, "%0*d", width, i)
			if !yield(&TestEntry{key: digits, value: digits, seqNum: seqNum + uint64(i)}) {
				return
			}
		}
	}
}

func ShuffledSequentialEntries(length int) []kv.Entry {
	entries := slices.Collect(SequentialEntriesSeq(length, 0))
	rand.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
	return entries
}

// SSTFileCount counts the table files in a local directory.
func SSTFileCount(t testingT, dir string) int {
	files, err := filepath.Glob(filepath.Join(dir, "*.sst"))
	require.NoError(t, err)
	return len(files)
}

// EntryIterator returns a storage iterator over the entries sorted by key.
// Deletes have an empty value. When a key repeats, the first entry wins.
func EntryIterator[E kv.Entry](entries []E) *iterators.SliceIterator {
	kvs := make([]iterators.KeyValue, 0, len(entries))
	for _, e := range entries {
		var value []byte
		if !e.IsDelete() {
			value = e.Value()
		}
		kvs = append(kvs, iterators.KeyValue{Key: kv.NewKey(e.Key(), e.SeqNum()), Value: value})
	}
	slices.SortStableFunc(kvs, func(a, b iterators.KeyValue) int {
		return bytes.Compare(a.Key.User, b.Key.User)
	})
	kvs = slices.CompactFunc(kvs, func(a, b iterators.KeyValue) bool {
		return bytes.Equal(a.Key.User, b.Key.User)
	})
	return iterators.NewSliceIterator(kvs)
}

// EntrySeqIterator collects a sequence of entries into a storage iterator.
func EntrySeqIterator(entries iter.Seq[kv.Entry]) *iterators.SliceIterator {
	return EntryIterator(slices.Collect(entries))
}

// CorruptFile rewrites a saved file with the byte at offset inverted.
func CorruptFile(t testingT, fs storage.FileSystem, name string, offset int64) {
	t.Helper()
	rewriteFile(t, fs, name, func(data []byte) []byte {
		require.Less(t, offset, int64(len(data)), "offset inside file")
		data[offset] = ^data[offset]
		return data
	})
}

// TruncateFile rewrites a saved file keeping only its first n bytes.
func TruncateFile(t testingT, fs storage.FileSystem, name string, n int64) {
	t.Helper()
	rewriteFile(t, fs, name, func(data []byte) []byte {
		return data[:n]
	})
}

func rewriteFile(t testingT, fs storage.FileSystem, name string, change func([]byte) []byte) {
	t.Helper()
	data, err := storage.ReadAll(fs.Open(name))
	require.NoError(t, err)

	f := fs.New(name)
	_, err = f.Write(change(bytes.Clone(data)))
	require.NoError(t, err)
	require.NoError(t, f.Save())
}
