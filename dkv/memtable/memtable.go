package memtable

import (
	"bytes"
	"sync"

	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/sst"
	"reduction.dev/mergekv/dkv/ziptree"
)

type MemTable struct {
	zt      *ziptree.ZipTree
	mu      sync.RWMutex
	memSize uint64
	size    uint64 // The expected flush size of the memtable
	sealed  bool
}

func NewMemTable(targetSize uint64) *MemTable {
	return &MemTable{
		zt:      ziptree.New(),
		memSize: targetSize,
	}
}

// Gets the value for a key. Returns kv.ErrNotFound if
// there is no matching key.
func (t *MemTable) Get(key []byte) (kv.Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.zt.Get(key)
	if !ok {
		return nil, kv.ErrNotFound
	}
	return entryOf(node), nil
}

// Put writes a copy of the key and value. Returns a `full` flag when the table
// has grown past its target size.
func (t *MemTable) Put(key []byte, value []byte, seqNum uint64) (full bool) {
	return t.write(ziptree.NewNode(bytes.Clone(key), bytes.Clone(value), version{seqNum: seqNum}))
}

// Delete is really an insert, writing with a delete marker. Returns a `full`
// flag when the table is full but will still write the entry, so there's no
// need to retry.
func (t *MemTable) Delete(key []byte, seqNum uint64) (full bool) {
	return t.write(ziptree.NewNode(bytes.Clone(key), nil, version{seqNum: seqNum, deleted: true}))
}

func (t *MemTable) write(node *ziptree.Node) (full bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		panic("BUG: write to sealed memtable")
	}

	replaced := t.zt.Put(node)
	t.size += uint64(sst.RowSize(node.Key, node.Value))
	if replaced != nil {
		t.size -= uint64(sst.RowSize(replaced.Key, replaced.Value))
	}
	return t.size > t.memSize
}

// Seal marks the table read-only.
func (t *MemTable) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Iter returns the entries with keys starting with prefix, including deletes
// which have empty values. A sealed table is read in place. The nodes of an
// active table are collected up front since writes relink the tree.
func (t *MemTable) Iter(prefix []byte) *Iterator {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cur := t.zt.Seek(prefix)
	if t.sealed {
		return &Iterator{cur: cur, prefix: prefix}
	}
	var nodes []*ziptree.Node
	for ; cur.Valid() && bytes.HasPrefix(cur.Node().Key, prefix); cur.Next() {
		nodes = append(nodes, cur.Node())
	}
	return &Iterator{nodes: nodes}
}

func (t *MemTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(t.size)
}

// Iterator is a storage iterator over a memtable.
type Iterator struct {
	// Set when reading a sealed table in place.
	cur    *ziptree.Cursor
	prefix []byte

	// Set when reading a snapshot of an active table.
	nodes []*ziptree.Node
	pos   int
}

func (it *Iterator) Valid() bool {
	if it.cur != nil {
		return it.cur.Valid() && bytes.HasPrefix(it.cur.Node().Key, it.prefix)
	}
	return it.pos < len(it.nodes)
}

func (it *Iterator) node() *ziptree.Node {
	if it.cur != nil {
		return it.cur.Node()
	}
	return it.nodes[it.pos]
}

func (it *Iterator) Key() kv.Key {
	n := it.node()
	return kv.NewKey(n.Key, versionOf(n).seqNum)
}

func (it *Iterator) Value() []byte {
	n := it.node()
	if versionOf(n).deleted {
		return nil
	}
	return n.Value
}

func (it *Iterator) Next() error {
	if it.cur != nil {
		it.cur.Next()
	} else if it.pos < len(it.nodes) {
		it.pos++
	}
	return nil
}

func (it *Iterator) Close() error {
	return nil
}

var _ iterators.StorageIterator = (*Iterator)(nil)
