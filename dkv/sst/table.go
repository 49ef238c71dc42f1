package sst

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"reduction.dev/mergekv/dkv/bloom"
	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/refs"
	"reduction.dev/mergekv/dkv/storage"
	"reduction.dev/mergekv/util/size"
)

var (
	filterHit  = metrics.NewCounter("table_filter_hit")
	filterMiss = metrics.NewCounter("table_filter_miss")
	filterFP   = metrics.NewCounter("table_filter_fp")
	rowsRead   = metrics.NewCounter("table_rows_read")
)

func ResetMetrics() {
	filterHit.Set(0)
	filterMiss.Set(0)
	filterFP.Set(0)
	rowsRead.Set(0)
	compactionTablesIn.Set(0)
	compactionTablesOut.Set(0)
}

// Table is an immutable sorted file of rows. Each user key appears at most
// once in a table.
type Table struct {
	id          uint64
	file        storage.File
	size        int64
	entriesSize int64
	rowCount    int64
	searchIndex *SearchIndex
	filter      *bloom.Filter
	startKey    []byte
	endKey      []byte
	minSeqNum   uint64
	maxSeqNum   uint64
	refCount    *refs.RefCount
}

const tableExt = ".sst"

// TableName is the file name of the table with the given id.
func TableName(id uint64) string {
	return fmt.Sprintf("%06d%s", id, tableExt)
}

// ParseTableName returns the id of a table file name.
func ParseTableName(name string) (uint64, bool) {
	idPart, ok := strings.CutSuffix(name, tableExt)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// newTable initializes a new, empty table to be written.
func newTable(id uint64, file storage.File) *Table {
	return &Table{
		id:          id,
		file:        file,
		searchIndex: &SearchIndex{},
		filter:      bloom.NewFilter(32*size.KB, 5),
		refCount:    refs.NewRefCount(),
	}
}

// OpenTable opens a saved table and loads its metadata.
func OpenTable(fs storage.FileSystem, name string) (*Table, error) {
	id, ok := ParseTableName(name)
	if !ok {
		return nil, fmt.Errorf("not a table file name: %s", name)
	}
	file := fs.Open(name)
	tableSize, err := file.Size()
	if err != nil {
		return nil, fmt.Errorf("opening table %s: %w", name, err)
	}

	t := &Table{
		id:       id,
		file:     file,
		size:     tableSize,
		refCount: refs.NewRefCount(),
	}
	if err := t.loadFooter(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Get(key []byte) (kv.Entry, error) {
	if !t.filter.MightHave(key) {
		filterHit.Inc()
		return nil, kv.ErrNotFound
	}
	filterMiss.Inc()
	if t.entriesSize == 0 {
		filterFP.Inc()
		return nil, kv.ErrNotFound
	}
	cur := storage.NewBoundedCursor(t.file, 0, uint64(t.entriesSize))

	// Search for offset range of a key in the index.
	start, end, err := t.searchIndex.Search(key, t.keyReader(cur))
	if err != nil {
		return nil, fmt.Errorf("table searching: %w", err)
	}

	// Scan for the key between the start and end offsets provided
	cur.Move(start)
	for cur.Offset() < end {
		r, err := readRow(cur)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table %s at offset %d: %w", t.Name(), cur.Offset(), err)
		}

		switch bytes.Compare(r.key, key) {
		case 0:
			return &Entry{r}, nil
		case 1:
			// Rows are sorted so the key isn't in the table.
			filterFP.Inc()
			return nil, kv.ErrNotFound
		}
	}

	filterFP.Inc()
	return nil, kv.ErrNotFound
}

// Iter returns an iterator over the rows with keys starting with prefix. The
// iterator holds a reference to the table until it's closed.
func (t *Table) Iter(prefix []byte) (*Iterator, error) {
	t.HoldRef()
	it := &Iterator{table: t, prefix: prefix}
	if t.entriesSize == 0 {
		return it, nil
	}
	it.cur = storage.NewBoundedCursor(t.file, 0, uint64(t.entriesSize))

	if len(prefix) > 0 {
		start, _, err := t.searchIndex.Search(prefix, t.keyReader(it.cur))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("table %s searching: %w", t.Name(), err), it.Close())
		}
		it.cur.Move(start)
	}

	if err := it.seek(); err != nil {
		return nil, errors.Join(err, it.Close())
	}
	return it, nil
}

// Read the key of the row at an offset.
func (t *Table) keyReader(cur *storage.Cursor) func(offset int64) ([]byte, error) {
	return func(offset int64) ([]byte, error) {
		cur.Move(offset)
		b, err := fields.ReadVarBytes(cur)
		if err != nil {
			return nil, fmt.Errorf("reading key at %d in %s: %w", offset, t.file.Name(), err)
		}
		return b, nil
	}
}

// Determine if the table may contain a key based on the start and end keys.
func (t *Table) RangeContainsKey(key []byte) bool {
	return t.rowCount > 0 && bytes.Compare(t.startKey, key) < 1 && bytes.Compare(t.endKey, key) > -1
}

// Determine if the table may contain a key prefix based on the start and end keys.
func (t *Table) RangeContainsPrefix(prefix []byte) bool {
	if t.rowCount == 0 {
		return false
	}
	return (bytes.Compare(t.startKey, prefix) < 1 && bytes.Compare(t.endKey, prefix) > -1) ||
		bytes.HasPrefix(t.startKey, prefix) ||
		bytes.HasPrefix(t.endKey, prefix)
}

func (t *Table) ID() uint64 {
	return t.id
}

func (t *Table) Size() int64 {
	return t.size
}

func (t *Table) EntriesSize() int64 {
	return t.entriesSize
}

func (t *Table) RowCount() int64 {
	return t.rowCount
}

// MaxSeqNum is the largest sequence number written to the table.
func (t *Table) MaxSeqNum() uint64 {
	return t.maxSeqNum
}

func (t *Table) Name() string {
	return t.file.Name()
}

func (t *Table) URI() string {
	return t.file.URI()
}

func (t *Table) HoldRef() {
	t.refCount.Hold()
}

// DropRef deletes the table's file once the last reference is dropped.
func (t *Table) DropRef() error {
	if !t.refCount.Drop() {
		return nil
	}
	slog.Debug("deleting table", "name", t.Name())
	if err := t.file.Delete(); err != nil {
		return fmt.Errorf("deleting table %s: %w", t.Name(), err)
	}
	return nil
}

func (t *Table) Diagnostics() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "file: %s", t.file.Name())
	fmt.Fprintf(&sb, "\nsize: %d, rows: %d, seq: %d-%d", t.size, t.rowCount, t.minSeqNum, t.maxSeqNum)
	fmt.Fprintf(&sb, "\nkeys: %q - %q", t.startKey, t.endKey)
	return sb.String()
}

// OrderNewToOld sorts tables with the most recently written table first.
func OrderNewToOld(a, b *Table) int {
	return cmp.Compare(b.id, a.id)
}

type row struct {
	key     []byte
	seqNum  uint64
	deleted bool
	value   []byte
}

// Read one row. Returns io.EOF only when there are no more rows.
//
//	[varbytes key][u64 seq num][u8 tombstone][varbytes value]
func readRow(r io.Reader) (row, error) {
	key, err := fields.ReadVarBytes(r)
	if err != nil {
		return row{}, err
	}
	seqNum, err := fields.ReadUint64(r)
	if err != nil {
		return row{}, fmt.Errorf("reading seq num: %w", err)
	}
	deleted, err := fields.ReadTombstone(r)
	if err != nil {
		return row{}, fmt.Errorf("reading tombstone: %w", err)
	}
	value, err := fields.ReadVarBytes(r)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return row{}, fmt.Errorf("reading value: %w", err)
	}
	if deleted && len(value) > 0 {
		return row{}, fmt.Errorf("tombstone with a value: %w", fields.ErrCorrupt)
	}
	rowsRead.Inc()
	return row{key: key, seqNum: seqNum, deleted: deleted, value: value}, nil
}
