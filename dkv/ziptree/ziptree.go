package ziptree

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"math/rand/v2"
)

type ZipTree struct {
	root *Node
}

func New() *ZipTree {
	return &ZipTree{}
}

// Insert is the original zip tree insert algorithm from https://arxiv.org/pdf/1806.06726.
func (t *ZipTree) insert(node *Node) error {
	node.rank = rand.Uint32()
	key := node.Key
	var prev *Node
	cur := t.root

	// Find the node to be replaced
	for cur != nil &&
		(node.rank < cur.rank || (node.rank == cur.rank && bytes.Compare(key, cur.Key) == 1)) {
		prev = cur
		if bytes.Compare(key, cur.Key) == -1 {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}

	// Insert the new node as a child in its ancestor or set it to root.
	if cur == t.root {
		t.root = node
	} else if bytes.Compare(key, prev.Key) == -1 {
		prev.left = node
	} else {
		prev.right = node
	}

	if cur == nil {
		node.left = nil
		node.right = nil
		return nil
	}

	// Decide where to place the node being replaced relative to the new node.
	if bytes.Compare(key, cur.Key) == -1 {
		node.right = cur
	} else {
		node.left = cur
	}

	// Follow the remaining search path for node, "unzipping".
	prev = node
	for cur != nil {
		fix := prev
		if bytes.Compare(cur.Key, key) == -1 {
			for cur != nil && bytes.Compare(cur.Key, key) <= 0 {
				prev = cur
				cur = cur.right
			}
		} else {
			for cur != nil && bytes.Compare(cur.Key, key) >= 0 {
				prev = cur
				cur = cur.left
			}
		}

		if bytes.Compare(fix.Key, key) == 1 || (fix == node && bytes.Compare(prev.Key, key) == 1) {
			fix.left = cur
		} else {
			fix.right = cur
		}
	}

	return nil
}

// Put either replaces or inserts a new value into the tree. Returns the
// replaced value or nil if the operation was an insert.
func (t *ZipTree) Put(node *Node) (replaced *Node) {
	key := node.Key
	var prev *Node
	cur := t.root

	for cur != nil {
		// If we found the key, stop
		keyCmp := bytes.Compare(key, cur.Key)
		if keyCmp == 0 {
			break
		}

		// Otherwise choose a branch to go down
		prev = cur
		if keyCmp == -1 {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}

	// If we can't find the node, insert it
	if cur == nil {
		t.insert(node)
		return nil
	}

	// Replace the node in the tree
	node.left = cur.left
	node.right = cur.right
	node.rank = cur.rank
	if cur == t.root {
		t.root = node
	} else {
		if prev.right == cur {
			prev.right = node
		} else {
			prev.left = node
		}
	}
	return cur
}

func (t *ZipTree) Get(key []byte) (*Node, bool) {
	cur := t.root
	for cur != nil {
		if bytes.Compare(key, cur.Key) == 1 {
			cur = cur.right
		} else if bytes.Compare(key, cur.Key) == -1 {
			cur = cur.left
		} else {
			return cur, true
		}
	}
	return nil, false
}

// AscendPrefix yields the nodes with keys starting with prefix in ascending
// order.
func (t *ZipTree) AscendPrefix(prefix []byte) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for c := t.Seek(prefix); c.Valid(); c.Next() {
			if !bytes.HasPrefix(c.Node().Key, prefix) {
				return
			}
			if !yield(c.Node()) {
				return
			}
		}
	}
}

// Seek returns a cursor positioned at the first node with a key >= lower. A
// nil lower positions the cursor at the smallest key.
func (t *ZipTree) Seek(lower []byte) *Cursor {
	c := &Cursor{}
	cur := t.root

	for cur != nil {
		keyCmp := bytes.Compare(lower, cur.Key)
		if keyCmp == 0 {
			// An exact match is the smallest node we need, stop searching.
			c.stack = append(c.stack, cur)
			break
		}
		if keyCmp == -1 {
			// Retain nodes greater than lower to visit after their left subtree.
			c.stack = append(c.stack, cur)
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return c
}

// Cursor walks a tree in ascending key order with an explicit stack. The top
// of the stack is the current node. Writes to the tree invalidate the cursor.
type Cursor struct {
	stack []*Node
}

func (c *Cursor) Valid() bool {
	return len(c.stack) > 0
}

// Node returns the current node. Only call when Valid.
func (c *Cursor) Node() *Node {
	return c.stack[len(c.stack)-1]
}

// Next moves to the next greater key.
func (c *Cursor) Next() {
	if len(c.stack) == 0 {
		return
	}
	cur := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]

	// Descend the left spine of the right subtree.
	for cur = cur.right; cur != nil; cur = cur.left {
		c.stack = append(c.stack, cur)
	}
}

// Fprint writes the tree in a human-readable way.
func (t *ZipTree) Fprint(w io.Writer) {
	fprintNode(w, t.root, "", false)
}

func fprintNode(w io.Writer, node *Node, prefix string, isLeft bool) {
	if node == nil {
		return
	}
	branch := "└── "
	childPrefix := prefix + "    "
	if isLeft {
		branch = "├── "
		childPrefix = prefix + "│   "
	}
	fmt.Fprintf(w, "%s%sKey: %q, Value: %q, Rank: %d\n", prefix, branch, node.Key, node.Value, node.rank)

	fprintNode(w, node.left, childPrefix, true)
	fprintNode(w, node.right, childPrefix, false)
}
