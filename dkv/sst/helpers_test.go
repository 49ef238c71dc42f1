package sst_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/sst"
)

// writeTable writes alternating sorted keys and values to a table. Sequence
// numbers count up from seqNum.
func writeTable(t *testing.T, tw *sst.TableWriter, seqNum uint64, kvs ...string) *sst.Table {
	t.Helper()
	var entries []iterators.KeyValue
	for i := 0; i < len(kvs); i += 2 {
		entries = append(entries, iterators.KeyValue{
			Key:   kv.NewKey([]byte(kvs[i]), seqNum),
			Value: []byte(kvs[i+1]),
		})
		seqNum++
	}
	table, err := tw.Write(iterators.NewSliceIterator(entries))
	require.NoError(t, err)
	return table
}

type row struct {
	Key   string
	Value string
}

func readAll(t *testing.T, it iterators.StorageIterator) []row {
	t.Helper()
	var rows []row
	for it.Valid() {
		rows = append(rows, row{string(it.Key().User), string(it.Value())})
		require.NoError(t, it.Next())
	}
	return rows
}
