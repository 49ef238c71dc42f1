package sst

import "reduction.dev/mergekv/dkv/kv"

// Entry is a row read by Table.Get.
type Entry struct {
	row
}

func (e *Entry) IsDelete() bool { return e.deleted }
func (e *Entry) Key() []byte    { return e.key }
func (e *Entry) Value() []byte  { return e.value }
func (e *Entry) SeqNum() uint64 { return e.seqNum }

var _ kv.Entry = (*Entry)(nil)

// Each row has a key length, value length, tombstone byte and sequence number.
const rowOverhead = 4 + 4 + 1 + 8

// RowSize is the number of bytes a key and value take in a table.
func RowSize(key, value []byte) int64 {
	return rowOverhead + int64(len(key)+len(value))
}
