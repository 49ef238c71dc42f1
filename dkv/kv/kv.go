package kv

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
)

// Entry is a single versioned record as stored by memtables and tables.
type Entry interface {
	Key() []byte
	Value() []byte
	IsDelete() bool
	SeqNum() uint64
}

// Key is the full comparable key of a stored record. User is the key bytes
// provided by the application and SeqNum is the write sequence number that
// distinguishes versions of the same user key.
type Key struct {
	User   []byte
	SeqNum uint64
}

// NewKey creates a key for a user key at a sequence number.
func NewKey(user []byte, seqNum uint64) Key {
	return Key{User: user, SeqNum: seqNum}
}

// CompareKeys orders keys by user key ascending and then by sequence number
// descending so that the newest version of a user key comes first.
func CompareKeys(a, b Key) int {
	if c := bytes.Compare(a.User, b.User); c != 0 {
		return c
	}
	return cmp.Compare(b.SeqNum, a.SeqNum)
}

// Equal reports whether both the user key and sequence number match.
func (k Key) Equal(other Key) bool {
	return k.SeqNum == other.SeqNum && bytes.Equal(k.User, other.User)
}

// Clone returns a key that doesn't share memory with k.
func (k Key) Clone() Key {
	return Key{User: bytes.Clone(k.User), SeqNum: k.SeqNum}
}

func (k Key) String() string {
	return fmt.Sprintf("%q@%d", k.User, k.SeqNum)
}

// IsTombstone reports whether a value marks a deleted key.
func IsTombstone(value []byte) bool {
	return len(value) == 0
}

var ErrNotFound = errors.New("NotFound")
