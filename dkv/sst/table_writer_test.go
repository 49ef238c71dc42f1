package sst_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/dkvtest"
	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/sst"
	"reduction.dev/mergekv/dkv/storage"
)

func TestGet(t *testing.T) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)

	writtenEntry := dkvtest.NewKVEntry("key", "value")
	table, err := tw.Write(dkvtest.EntryIterator([]kv.Entry{writtenEntry}))
	require.NoError(t, err)

	v, err := table.Get([]byte("key"))
	require.NoError(t, err)
	dkvtest.EntryEqual(t, writtenEntry, v)
}

// Given entries that can be perfectly split between tables we expect tables of
// uniform size.
func TestWriteTables_PerfectSizing(t *testing.T) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)

	entryList := dkvtest.SequentialEntriesList(4)
	tables, err := tw.WriteRun(dkvtest.EntryIterator(entryList.Entries), uint64(entryList.Size)/2)
	require.NoError(t, err)
	assert.Len(t, tables, 2)
	assert.Equal(t, tables[0].Size(), tables[1].Size())
	assert.Equal(t, []string{"000000.sst", "000001.sst"}, []string{tables[0].Name(), tables[1].Name()})
}

// A table is cut after the row that reaches the target size.
func TestWriteTables_JustOverTargetSize(t *testing.T) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)

	entryList := dkvtest.SequentialEntriesList(5)
	rowSize := entryList.Size / 5
	tables, err := tw.WriteRun(dkvtest.EntryIterator(entryList.Entries), uint64(2*rowSize+1))
	require.NoError(t, err)

	require.Len(t, tables, 2)
	assert.Equal(t, int64(3*rowSize), tables[0].EntriesSize())
	assert.Equal(t, int64(3), tables[0].RowCount())
	assert.Equal(t, int64(2*rowSize), tables[1].EntriesSize())
	assert.Less(t, tables[1].Size(), tables[0].Size())
}

func TestWriteTables_NoEntries(t *testing.T) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)

	tables, err := tw.WriteRun(iterators.NewSliceIterator(nil), 100)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestWrite_KeysOutOfOrder(t *testing.T) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)

	_, err := tw.Write(iterators.NewSliceIterator([]iterators.KeyValue{
		{Key: kv.NewKey([]byte("b"), 0), Value: []byte("1")},
		{Key: kv.NewKey([]byte("a"), 0), Value: []byte("2")},
	}))
	assert.ErrorContains(t, err, "keys out of order")
}

func TestWrite_SourceError(t *testing.T) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)
	fs := storage.NewMemoryFilesystem()
	damaged := writeTable(t, sst.NewTableWriter(fs, 0), 0, "a", "1", "b", "2")
	dkvtest.CorruptFile(t, fs, damaged.Name(), sst.RowSize([]byte("a"), []byte("1"))+4+1+8)

	table, err := sst.OpenTable(fs, damaged.Name())
	require.NoError(t, err)
	it, err := table.Iter(nil)
	require.NoError(t, err)
	defer it.Close()

	_, err = tw.Write(it)
	assert.Error(t, err)
}

func TestWrite_OversizedRow(t *testing.T) {
	fs := storage.NewMemoryFilesystem()
	tw := sst.NewTableWriter(fs, 0)

	_, err := tw.Write(iterators.NewSliceIterator([]iterators.KeyValue{
		{Key: kv.NewKey([]byte("a"), 0), Value: []byte("1")},
		{Key: kv.NewKey([]byte("b"), 0), Value: make([]byte, fields.MaxVarBytesLen+1)},
	}))
	assert.ErrorContains(t, err, "limit is")

	names, err := fs.List()
	require.NoError(t, err)
	assert.Empty(t, names, "a table with a dropped row is never saved")
}
