// Package murmur implements the 32-bit MurmurHash3 (x86_32) function.
package murmur

import (
	"encoding/binary"
	"math/bits"
)

const (
	c1 uint32 = 0xcc9e2d51
	c2 uint32 = 0x1b873593
)

// Sum32 hashes data with seed. The result matches the reference
// MurmurHash3_x86_32 for any input alignment.
func Sum32(data []byte, seed uint32) uint32 {
	h := seed
	n := uint32(len(data))

	for ; len(data) >= 4; data = data[4:] {
		h ^= scramble(binary.LittleEndian.Uint32(data))
		h = bits.RotateLeft32(h, 13)
		h = h*5 + 0xe6546b64
	}

	var tail uint32
	switch len(data) {
	case 3:
		tail |= uint32(data[2]) << 16
		fallthrough
	case 2:
		tail |= uint32(data[1]) << 8
		fallthrough
	case 1:
		tail |= uint32(data[0])
		h ^= scramble(tail)
	}

	h ^= n
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}

func scramble(k uint32) uint32 {
	k *= c1
	k = bits.RotateLeft32(k, 15)
	return k * c2
}
