package ziptree_test

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"reduction.dev/mergekv/dkv/ziptree"
)

func TestPutAndGetValues(t *testing.T) {
	tree := ziptree.New()
	tree.Put(ziptree.NewNode([]byte("a"), []byte{1}, nil))
	tree.Put(ziptree.NewNode([]byte("b"), []byte{2}, nil))
	tree.Put(ziptree.NewNode([]byte("c"), []byte{2}, nil))

	node, ok := tree.Get([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, node.Value, []byte{1})

	_, ok = tree.Get([]byte("z"))
	assert.False(t, ok)
}

func TestPutOverwritingNodes(t *testing.T) {
	tree := ziptree.New()
	tree.Put(ziptree.NewNode([]byte("a"), []byte{1}, nil))
	tree.Put(ziptree.NewNode([]byte("b"), []byte{2}, nil))
	tree.Put(ziptree.NewNode([]byte("c"), []byte{3}, nil))
	tree.Put(ziptree.NewNode([]byte("d"), []byte{3}, nil))
	tree.Put(ziptree.NewNode([]byte("a"), []byte{2}, nil))
	replaced := tree.Put(ziptree.NewNode([]byte("a"), []byte{3}, nil))
	tree.Put(ziptree.NewNode([]byte("d"), []byte{1}, nil))

	require.NotNil(t, replaced)
	assert.Equal(t, []byte{2}, replaced.Value)

	node, ok := tree.Get([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, []byte{3}, node.Value)

	node, ok = tree.Get([]byte("b"))
	assert.True(t, ok)
	assert.Equal(t, []byte{2}, node.Value)

	node, ok = tree.Get([]byte("d"))
	assert.True(t, ok)
	assert.Equal(t, []byte{1}, node.Value)

	var sb strings.Builder
	tree.Fprint(&sb)
	assert.Equal(t, 4, strings.Count(sb.String(), "Key:"))
}

func TestPutAndAscentPrefix_NoExactKeyMatch(t *testing.T) {
	tree := ziptree.New()
	tree.Put(ziptree.NewNode([]byte("aa"), []byte{1}, nil))
	tree.Put(ziptree.NewNode([]byte("ba"), []byte{2}, nil))
	tree.Put(ziptree.NewNode([]byte("bb"), []byte{3}, nil))
	tree.Put(ziptree.NewNode([]byte("bc"), []byte{4}, nil))
	tree.Put(ziptree.NewNode([]byte("ca"), []byte{5}, nil))

	var values [][]byte
	for node := range tree.AscendPrefix([]byte("b")) {
		values = append(values, node.Value)
	}
	assert.Equal(t, [][]byte{{2}, {3}, {4}}, values)
}

func TestPutAndAscentPrefix_WithExactMatch(t *testing.T) {
	tree := ziptree.New()
	tree.Put(ziptree.NewNode([]byte("a"), []byte{1}, nil))
	tree.Put(ziptree.NewNode([]byte("b"), []byte{2}, nil))
	tree.Put(ziptree.NewNode([]byte("ba"), []byte{3}, nil))
	tree.Put(ziptree.NewNode([]byte("bb"), []byte{4}, nil))
	tree.Put(ziptree.NewNode([]byte("c"), []byte{5}, nil))

	var values [][]byte
	for node := range tree.AscendPrefix([]byte("b")) {
		values = append(values, node.Value)
	}
	assert.Equal(t, [][]byte{{2}, {3}, {4}}, values)
}

func TestCursor_EmptyTree(t *testing.T) {
	c := ziptree.New().Seek(nil)
	assert.False(t, c.Valid())
	c.Next()
	assert.False(t, c.Valid())
}

func TestCursor_SeekVisitsKeysInOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	tree := ziptree.New()
	var keys []string
	for range 500 {
		key := fmt.Sprintf("%04d", rng.IntN(2_000))
		if tree.Put(ziptree.NewNode([]byte(key), nil, nil)) == nil {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	tests := []struct {
		name  string
		lower []byte
		want  []string
	}{
		{"nil lower bound", nil, keys},
		{"existing key", []byte(keys[100]), keys[100:]},
		{"between keys", []byte(keys[100] + "x"), keys[101:]},
		{"past the end", []byte("9999x"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for c := tree.Seek(tt.lower); c.Valid(); c.Next() {
				got = append(got, string(c.Node().Key))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// Standard benchmark to compare to other skip lists.
func BenchmarkReadWrite(b *testing.B) {
	value := []byte("value")
	for i := 0; i <= 10; i++ {
		readFrac := float32(i) / 10.0
		b.Run(fmt.Sprintf("frac_%d", i*10), func(b *testing.B) {
			var count int
			rng := rand.New(rand.NewPCG(uint64(i), 0))
			zt := ziptree.New()

			for b.Loop() {
				if rng.Float32() < readFrac {
					for range zt.AscendPrefix(randomKey(rng)[:1]) {
						count++
					}
				} else {
					zt.Put(ziptree.NewNode(randomKey(rng), value, nil))
				}
			}
		})
	}
}

func randomKey(rng *rand.Rand) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, rng.Uint32())
	binary.LittleEndian.PutUint32(b[4:], rng.Uint32())
	return b
}
