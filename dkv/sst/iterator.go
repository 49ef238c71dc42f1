package sst

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/storage"
)

// Iterator reads the rows of a table with a key prefix in order. Deleted rows
// surface with an empty value. A row that can't be decoded fails Next.
type Iterator struct {
	table  *Table
	cur    *storage.Cursor
	prefix []byte
	row    row
	valid  bool
	closed bool
}

// Move to the first row with a key >= prefix.
func (it *Iterator) seek() error {
	for {
		r, err := readRow(it.cur)
		if errors.Is(err, io.EOF) {
			it.valid = false
			return nil
		}
		if err != nil {
			return it.readErr(err)
		}
		if bytes.Compare(r.key, it.prefix) >= 0 {
			it.setRow(r)
			return nil
		}
	}
}

func (it *Iterator) setRow(r row) {
	it.row = r
	it.valid = bytes.HasPrefix(r.key, it.prefix)
}

func (it *Iterator) Valid() bool {
	return it.valid
}

func (it *Iterator) Key() kv.Key {
	return kv.NewKey(it.row.key, it.row.seqNum)
}

func (it *Iterator) Value() []byte {
	return it.row.value
}

// Next reads the next row. When the row can't be read the iterator stays on
// the current row and returns the error.
func (it *Iterator) Next() error {
	if !it.valid {
		return nil
	}
	r, err := readRow(it.cur)
	if errors.Is(err, io.EOF) {
		it.valid = false
		return nil
	}
	if err != nil {
		return it.readErr(err)
	}
	if bytes.Compare(r.key, it.row.key) <= 0 {
		return it.readErr(fmt.Errorf("key %q is not after %q: %w", r.key, it.row.key, fields.ErrCorrupt))
	}
	it.setRow(r)
	return nil
}

// Close releases the iterator's reference to the table.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.valid = false
	return it.table.DropRef()
}

func (it *Iterator) readErr(err error) error {
	return fmt.Errorf("table %s at offset %d: %w", it.table.Name(), it.cur.Offset(), err)
}

var _ iterators.StorageIterator = (*Iterator)(nil)
