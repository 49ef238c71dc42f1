package bloom

import (
	"fmt"
	"io"

	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/util/murmur"
)

// Upper bound on the number of bits in a decoded filter.
const maxSize = 1 << 30

type Filter struct {
	bitArray  []uint64
	size      uint32
	hashCount int
}

// NewFilter creates a BloomFilter with a size and number of hash functions
// to run.
func NewFilter(size uint32, hashes int) *Filter {
	// Calculate the number of uint64s needed to store `size` bits
	numUint64s := (size + 63) / 64

	return &Filter{
		bitArray:  make([]uint64, numUint64s),
		size:      size,
		hashCount: hashes,
	}
}

// Add inserts an element into the Bloom filter
func (bf *Filter) Add(data []byte) {
	for i := range bf.hashCount {
		hash := murmur.Sum32(data, uint32(i))
		index := hash % bf.size
		bf.setBit(index)
	}
}

// MightHave checks if an element is possibly in the set
func (bf *Filter) MightHave(data []byte) bool {
	for i := range bf.hashCount {
		hash := murmur.Sum32(data, uint32(i))
		index := hash % bf.size
		if !bf.getBit(index) {
			return false
		}
	}

	return true
}

// Encode writes the filter size, hash count and bit array.
func (bf *Filter) Encode(w io.Writer) (int64, error) {
	ew := &fields.ErrWriter{W: w}
	fields.WriteUint32(ew, bf.size)
	fields.WriteUint32(ew, uint32(bf.hashCount))
	for _, num := range bf.bitArray {
		fields.WriteUint64(ew, num)
	}
	return ew.N, ew.Err
}

func Decode(r io.Reader) (*Filter, error) {
	size, err := fields.ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("bloom filter size: %w", err)
	}
	if size == 0 || size > maxSize {
		return nil, fmt.Errorf("bloom filter size %d: %w", size, fields.ErrCorrupt)
	}
	hashes, err := fields.ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("bloom filter hash count: %w", err)
	}
	if hashes == 0 || hashes > 64 {
		return nil, fmt.Errorf("bloom filter hash count %d: %w", hashes, fields.ErrCorrupt)
	}

	bf := NewFilter(size, int(hashes))
	for i := range bf.bitArray {
		num, err := fields.ReadUint64(r)
		if err != nil {
			return nil, fmt.Errorf("bloom filter bits: %w", err)
		}
		bf.bitArray[i] = num
	}

	return bf, nil
}

// setBit sets the bit at position `pos` in the bit array
func (bf *Filter) setBit(pos uint32) {
	index := pos / 64                 // Determine which uint64 element to use
	bitPos := pos % 64                // Determine the bit position within that uint64
	bf.bitArray[index] |= 1 << bitPos // Set the bit
}

// getBit returns true if the bit at position `pos` is set, false otherwise
func (bf *Filter) getBit(pos uint32) bool {
	index := pos / 64  // Determine which uint64 element to use
	bitPos := pos % 64 // Determine the bit position within that uint64
	return (bf.bitArray[index] & (1 << bitPos)) != 0
}
