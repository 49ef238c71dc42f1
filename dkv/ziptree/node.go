package ziptree

// Node is an entry in the tree. The tree orders nodes by Key and never reads
// Value or Meta. A node's Key must not change once it's in a tree.
type Node struct {
	Key   []byte
	Value []byte
	Meta  any

	rank        uint32
	left, right *Node
}

// NewNode returns a node that isn't in a tree yet. Put assigns its rank.
func NewNode(key, value []byte, meta any) *Node {
	return &Node{Key: key, Value: value, Meta: meta}
}
