package sst_test

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"testing"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/dkvtest"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/sst"
	"reduction.dev/mergekv/dkv/storage"
)

var benchEntryCounts = []int{
	10_000,
	100_000,
	500_000,
}

func BenchmarkGet_MemoryFile(b *testing.B) {
	tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)
	p := message.NewPrinter(language.English)

	for _, entryCount := range benchEntryCounts {
		table, err := tw.Write(dkvtest.EntrySeqIterator(dkvtest.SequentialEntriesSeq(entryCount, 0)))
		require.NoError(b, err)

		b.Run(p.Sprintf("get in %d entries", entryCount), func(b *testing.B) {
			key := fmt.Appendf(nil, "%0*d", len(fmt.Sprint(entryCount)), mrand.IntN(entryCount))
			for b.Loop() {
				_, _ = table.Get(key)
			}
		})
	}
}

func BenchmarkGetNotFound_DiskFile(b *testing.B) {
	fs, err := storage.NewLocalFilesystem(b.TempDir())
	require.NoError(b, err)
	tw := sst.NewTableWriter(fs, 0)
	p := message.NewPrinter(language.English)

	for _, entryCount := range benchEntryCounts {
		table, err := tw.Write(dkvtest.EntrySeqIterator(dkvtest.SequentialEntriesSeq(entryCount, 0)))
		require.NoError(b, err)

		b.Run(p.Sprintf("get in %d entries", entryCount), func(b *testing.B) {
			missingKey := make([]byte, 10)
			_, err = rand.Read(missingKey)
			require.NoError(b, err)
			missingKey = append([]byte("not-found"), missingKey...)

			for b.Loop() {
				_, _ = table.Get(missingKey)
			}
		})
	}
}

func BenchmarkMergeScan(b *testing.B) {
	p := message.NewPrinter(language.English)

	for _, tableCount := range []int{2, 8, 32} {
		tw := sst.NewTableWriter(storage.NewMemoryFilesystem(), 0)
		var tables []*sst.Table
		for i := range tableCount {
			table, err := tw.Write(dkvtest.EntrySeqIterator(dkvtest.SequentialEntriesSeq(10_000, uint64(i*10_000))))
			require.NoError(b, err)
			tables = append(tables, table)
		}
		ll := sst.NewLevelListOfTables([][]*sst.Table{tables, nil})

		b.Run(p.Sprintf("scan %d overlapping tables", tableCount), func(b *testing.B) {
			for b.Loop() {
				iters, err := ll.Iters(nil)
				require.NoError(b, err)
				lsm, err := iterators.NewLsmIterator(iterators.NewMergeIterator(iters))
				require.NoError(b, err)
				for lsm.Valid() {
					require.NoError(b, lsm.Next())
				}
				require.NoError(b, lsm.Close())
			}
		})
	}
}
