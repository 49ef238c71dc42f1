package sst

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"slices"

	"reduction.dev/mergekv/dkv/fields"
)

// Write a value to the search index every nth entry, starting with the first
// entry.
const searchIndexSpacing = 16

type SearchIndex struct {
	offsets      []uint32
	itemsWritten int
}

// Every n items, write an entry to the index
func (si *SearchIndex) IndexOffset(offset int64) {
	if si.itemsWritten%searchIndexSpacing == 0 {
		si.offsets = append(si.offsets, uint32(offset))
	}
	si.itemsWritten++
}

// Search returns the offset range of the rows that may hold targetKey, or
// the first key after it. The range starts at the last indexed row with a key
// <= targetKey.
func (si *SearchIndex) Search(targetKey []byte, readKey func(offset int64) ([]byte, error)) (start, end int64, err error) {
	// If we have no index, do the entire scan.
	if len(si.offsets) == 0 {
		return 0, math.MaxInt64, nil
	}

	// Compare the offsets in the searchIndex given a targetKey.
	var searchErr error
	cmp := func(offset uint32, targetKey []byte) int {
		if searchErr != nil {
			return 0
		}
		key, err := readKey(int64(offset))
		if err != nil {
			searchErr = err
			return 0 // Claim "found" to stop the search.
		}

		return bytes.Compare(key, targetKey)
	}
	foundIndex, isExact := slices.BinarySearchFunc(si.offsets, targetKey, cmp)
	if searchErr != nil {
		return 0, 0, searchErr
	}

	// BinarySearch returns the _greater_ index when we don't find an exact match
	// so subtract one here to start searching from the earlier index. A key
	// before the first indexed row starts at the first row.
	if !isExact && foundIndex > 0 {
		foundIndex--
	}

	// Use a scan from this point to look for the key
	startOffset := int64(si.offsets[foundIndex])

	var endOffset int64
	if foundIndex == len(si.offsets)-1 {
		endOffset = math.MaxInt64
	} else {
		endOffset = int64(si.offsets[foundIndex+1])
	}

	return startOffset, endOffset, nil
}

func (si *SearchIndex) Encode(w io.Writer) (int64, error) {
	ew := &fields.ErrWriter{W: w}

	// Write the number of offsets
	fields.WriteUint32(ew, uint32(len(si.offsets)))

	// Write each offset
	for _, o := range si.offsets {
		fields.WriteUint32(ew, o)
	}
	return ew.N, ew.Err
}

// SearchIndexDecode reads a search index for a table whose rows occupy
// entriesSize bytes. Offsets must be ascending and inside the rows.
func SearchIndexDecode(r io.Reader, entriesSize int64) (*SearchIndex, error) {
	offsetCount, err := fields.ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("search index length: %w", err)
	}
	// Each row is at least rowOverhead bytes.
	if int64(offsetCount) > entriesSize/rowOverhead+1 {
		return nil, fmt.Errorf("search index length %d: %w", offsetCount, fields.ErrCorrupt)
	}

	si := &SearchIndex{offsets: make([]uint32, offsetCount)}
	for i := range si.offsets {
		offset, err := fields.ReadUint32(r)
		if err != nil {
			return nil, fmt.Errorf("search index offset: %w", err)
		}
		if int64(offset) >= entriesSize || (i > 0 && offset <= si.offsets[i-1]) {
			return nil, fmt.Errorf("search index offset %d: %w", offset, fields.ErrCorrupt)
		}
		si.offsets[i] = offset
	}

	return si, nil
}
