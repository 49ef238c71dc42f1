package dkv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv"
	"reduction.dev/mergekv/dkv/dkvtest"
	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/sst"
	"reduction.dev/mergekv/dkv/storage"
)

// A damaged row fails the scan once. The cursor then stays invalid and keeps
// reporting that it's broken.
func TestIterator_CorruptTableBreaksIterator(t *testing.T) {
	fs := storage.NewMemoryFilesystem()
	db := openDB(t, dkv.DBOptions{FileSystem: fs})
	entryList := dkvtest.SequentialEntriesList(100)
	for _, e := range entryList.Entries {
		db.Put(e.Key(), e.Value())
	}
	require.NoError(t, db.Close())

	// Damage the tombstone marker of the 51st row.
	rowSize := sst.RowSize([]byte("000"), []byte("000"))
	dkvtest.CorruptFile(t, fs, "000000.sst", 50*rowSize+4+3+8)
	db = openDB(t, dkv.DBOptions{FileSystem: fs})

	it, err := db.NewIterator(nil)
	require.NoError(t, err)
	defer it.Close()

	count := 0
	for it.Valid() {
		count++
		if err = it.Next(); err != nil {
			break
		}
	}
	assert.Equal(t, 50, count)
	assert.ErrorIs(t, err, fields.ErrCorrupt)
	assert.NotErrorIs(t, err, iterators.ErrIteratorBroken, "first failure is returned as is")

	assert.False(t, it.Valid())
	for range 3 {
		err = it.Next()
		assert.ErrorIs(t, err, iterators.ErrIteratorBroken)
		assert.ErrorIs(t, err, fields.ErrCorrupt)
	}
	assert.ErrorIs(t, it.Err(), fields.ErrCorrupt)

	// Point reads before the damaged row still work.
	v, err := db.Get([]byte("010"))
	require.NoError(t, err)
	assert.Equal(t, []byte("010"), v)
}

func TestIterator_ScanPrefixReportsCorruption(t *testing.T) {
	fs := storage.NewMemoryFilesystem()
	db := openDB(t, dkv.DBOptions{FileSystem: fs})
	for _, e := range dkvtest.SequentialEntriesList(100).Entries {
		db.Put(e.Key(), e.Value())
	}
	require.NoError(t, db.Close())

	rowSize := sst.RowSize([]byte("000"), []byte("000"))
	dkvtest.CorruptFile(t, fs, "000000.sst", 10*rowSize+4+3+8)
	db = openDB(t, dkv.DBOptions{FileSystem: fs})

	var itErr error
	count := 0
	for range db.ScanPrefix(nil, &itErr) {
		count++
	}
	assert.Equal(t, 10, count)
	assert.ErrorIs(t, itErr, fields.ErrCorrupt)
}
