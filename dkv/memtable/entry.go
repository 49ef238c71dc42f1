package memtable

import (
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/ziptree"
)

// version is the node meta for a memtable write.
type version struct {
	seqNum  uint64
	deleted bool
}

func versionOf(node *ziptree.Node) version {
	return node.Meta.(version)
}

// Entry is the latest write of a key in a memtable.
type Entry struct {
	key   []byte
	value []byte
	version
}

func entryOf(node *ziptree.Node) *Entry {
	return &Entry{key: node.Key, value: node.Value, version: versionOf(node)}
}

func (e *Entry) IsDelete() bool { return e.deleted }
func (e *Entry) Key() []byte    { return e.key }
func (e *Entry) SeqNum() uint64 { return e.seqNum }
func (e *Entry) Value() []byte  { return e.value }

var _ kv.Entry = (*Entry)(nil)
