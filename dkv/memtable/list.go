package memtable

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"reduction.dev/mergekv/dkv/kv"
)

// This list's metaphor is a thread-safe queue, however the slices of tables is
// immutably replaced when changed. New tables are enqueued and older tables are
// dequeued as they are flushed. The process of adding a new memtable must be
// synchronous so that after each Put, Get works. The process of flushing
// memtables is asynchronous.
type List struct {
	// The last table is the active table and the rest are immutable (sealed).
	tables             []*MemTable
	tablesMu           *sync.RWMutex
	targetMemTableSize uint64
}

type MemTableOptions struct {
	MemSize uint64
}

// NewList creates a new queue of memtables with one active memtable.
func NewList(memtableOptions *MemTableOptions) *List {
	return &List{
		tables:             []*MemTable{NewMemTable(memtableOptions.MemSize)},
		tablesMu:           &sync.RWMutex{},
		targetMemTableSize: memtableOptions.MemSize,
	}
}

// Sealed returns the sealed tables, oldest first.
func (l *List) Sealed() []*MemTable {
	tables := l.tablesSnap()
	return tables[:len(tables)-1]
}

// Remove memtables from the tail of the queue. This method checks that tables
// being removed are at the end of the queue and in order. This ensures the
// caller obtains sealed tables and dequeues them serially.
func (l *List) Dequeue(tables []*MemTable) {
	l.tablesMu.Lock()
	defer l.tablesMu.Unlock()
	for i, t := range tables {
		if l.tables[i] != t {
			panic("BUG: dequeued table not found at the correct location in memtable queue")
		}
	}
	l.tables = l.tables[len(tables):]
}

// Rotate seals the active table and starts a new one.
func (l *List) Rotate() {
	l.tablesMu.Lock()
	defer l.tablesMu.Unlock()
	l.tables[len(l.tables)-1].Seal()
	l.tables = append(slices.Clip(l.tables), NewMemTable(l.targetMemTableSize))
}

// ActiveSize is the flush size of the active table.
func (l *List) ActiveSize() int {
	return l.active().Size()
}

func (l *List) Delete(key []byte, seqNum uint64) (full bool) {
	return l.active().Delete(key, seqNum)
}

func (l *List) Put(key []byte, value []byte, seqNum uint64) (full bool) {
	return l.active().Put(key, value, seqNum)
}

// Get returns the newest entry for a key, including deletes.
func (l *List) Get(key []byte) (kv.Entry, error) {
	tables := l.tablesSnap()
	for _, t := range slices.Backward(tables) {
		v, err := t.Get(key)
		if err != nil {
			if err == kv.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("memtable get: %w", err)
		}
		return v, nil
	}
	return nil, kv.ErrNotFound
}

// Iters returns an iterator for each memtable, newest first.
func (l *List) Iters(prefix []byte) []*Iterator {
	tables := l.tablesSnap()
	iters := make([]*Iterator, 0, len(tables))
	for _, t := range slices.Backward(tables) {
		iters = append(iters, t.Iter(prefix))
	}
	return iters
}

func (l *List) Diagnostics() string {
	var sb strings.Builder

	tables := l.tablesSnap()
	sb.WriteString(fmt.Sprintf("\nMemTables (num: %d)", len(tables)))
	for i, t := range tables {
		sb.WriteString(fmt.Sprintf("\n %d: size %d", i, t.Size()))
	}

	return sb.String()
}

// tablesSnap returns the current slice of tables which is never modified in
// place.
func (l *List) tablesSnap() []*MemTable {
	l.tablesMu.RLock()
	defer l.tablesMu.RUnlock()
	return l.tables
}

func (l *List) active() *MemTable {
	tables := l.tablesSnap()
	if len(tables) == 0 {
		panic("should always have at least one memTable")
	}
	return tables[len(tables)-1]
}
