package sst

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"sync/atomic"

	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/storage"
)

// Table writer is a factory for creating tables that keeps track of the table ID.
type TableWriter struct {
	fs storage.FileSystem
	id *atomic.Uint64
}

// Create a TableWriter with a given file system and the next table ID to use.
func NewTableWriter(fs storage.FileSystem, nextID uint64) *TableWriter {
	id := &atomic.Uint64{}
	id.Store(nextID)
	return &TableWriter{fs: fs, id: id}
}

// Write all remaining entries of the iterator to one table. The iterator is
// not closed.
func (c *TableWriter) Write(entries iterators.StorageIterator) (*Table, error) {
	return c.writeTable(entries, math.MaxInt64)
}

// WriteRun writes the remaining entries to tables of about targetSize bytes of
// rows each. Writes no tables when there are no entries.
func (c *TableWriter) WriteRun(entries iterators.StorageIterator, targetSize uint64) ([]*Table, error) {
	var tables []*Table
	for entries.Valid() {
		t, err := c.writeTable(entries, int64(targetSize))
		if err != nil {
			for _, written := range tables {
				written.DropRef()
			}
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// Write entries until the iterator is exhausted or the rows reach maxSize.
//
// Format:
//
//	<beginning_of_file>
//	[row 1]
//	[row 2]
//	...
//	[row N]
//	[metadata blocks]
//	[footer (12 bytes)]
//	<end_of_file>
func (c *TableWriter) writeTable(entries iterators.StorageIterator, maxSize int64) (*Table, error) {
	reservedNum := c.id.Add(1) - 1
	f := c.fs.New(TableName(reservedNum))
	table := newTable(reservedNum, f)
	w := &fields.ErrWriter{W: f}

	for entries.Valid() && table.size < maxSize {
		if err := table.writeRow(w, entries.Key(), entries.Value()); err != nil {
			return nil, err
		}
		if err := entries.Next(); err != nil {
			return nil, fmt.Errorf("writing table %s: %w", table.Name(), err)
		}
	}

	if err := table.writeFooter(w); err != nil {
		return nil, fmt.Errorf("writing table %s footer: %w", table.Name(), err)
	}
	if err := f.Save(); err != nil {
		return nil, fmt.Errorf("saving table %s: %w", table.Name(), err)
	}
	return table, nil
}

// Write one row. An empty value is written as a tombstone.
func (t *Table) writeRow(w *fields.ErrWriter, key kv.Key, value []byte) error {
	if t.rowCount > 0 && bytes.Compare(key.User, t.endKey) <= 0 {
		return fmt.Errorf("table %s keys out of order: %q written after %q", t.Name(), key.User, t.endKey)
	}
	if len(key.User) > fields.MaxVarBytesLen || len(value) > fields.MaxVarBytesLen {
		return fmt.Errorf("table %s row of %d byte key and %d byte value: limit is %d bytes",
			t.Name(), len(key.User), len(value), fields.MaxVarBytesLen)
	}

	// Set initial entry values
	if t.rowCount == 0 {
		t.startKey = bytes.Clone(key.User)
		t.minSeqNum = key.SeqNum
	}
	// Set ending entry values
	t.endKey = bytes.Clone(key.User)
	t.minSeqNum = min(t.minSeqNum, key.SeqNum)
	t.maxSeqNum = max(t.maxSeqNum, key.SeqNum)
	t.rowCount++

	// Add to metadata
	t.searchIndex.IndexOffset(t.size)
	t.filter.Add(key.User)

	start := w.N
	_, keyErr := fields.WriteVarBytes(w, key.User)
	fields.WriteUint64(w, key.SeqNum)
	fields.WriteTombstone(w, kv.IsTombstone(value))
	_, valueErr := fields.WriteVarBytes(w, value)
	t.size += w.N - start
	if err := cmp.Or(keyErr, valueErr, w.Err); err != nil {
		return fmt.Errorf("writing table %s row: %w", t.Name(), err)
	}
	return nil
}
