package sst

import (
	"fmt"
	"io"

	"reduction.dev/mergekv/dkv/bloom"
	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/storage"
)

const (
	footerSize   = 12
	tableVersion = 1
)

// Write the metadata blocks and the footer after the last row.
//
//	[meta block 1: bloom filter]
//	[meta block 2: search index]
//	[meta block 3: key range (start key, end key, min seq, max seq, row count)]
//	[footer: metadata offset (8 bytes), version (4 bytes)]
func (t *Table) writeFooter(w io.Writer) error {
	t.entriesSize = t.size
	ew := &fields.ErrWriter{W: w}

	if _, err := t.filter.Encode(ew); err != nil {
		return err
	}
	if _, err := t.searchIndex.Encode(ew); err != nil {
		return err
	}
	fields.WriteVarBytes(ew, t.startKey)
	fields.WriteVarBytes(ew, t.endKey)
	fields.WriteUint64(ew, t.minSeqNum)
	fields.WriteUint64(ew, t.maxSeqNum)
	fields.WriteUint64(ew, uint64(t.rowCount))

	fields.WriteUint64(ew, uint64(t.entriesSize))
	fields.WriteUint32(ew, tableVersion)

	t.size += ew.N
	return ew.Err
}

func (t *Table) loadFooter() error {
	if t.size < footerSize {
		return fmt.Errorf("table %s size %d: %w", t.Name(), t.size, fields.ErrCorrupt)
	}

	cur := storage.NewBoundedCursor(t.file, uint64(t.size-footerSize), uint64(t.size))

	metaOffset, err := fields.ReadUint64(cur)
	if err != nil {
		return fmt.Errorf("table %s footer: %w", t.Name(), err)
	}
	version, err := fields.ReadUint32(cur)
	if err != nil {
		return fmt.Errorf("table %s footer: %w", t.Name(), err)
	}
	if version != tableVersion {
		return fmt.Errorf("table %s version %d: %w", t.Name(), version, fields.ErrCorrupt)
	}
	if metaOffset > uint64(t.size-footerSize) {
		return fmt.Errorf("table %s metadata offset %d: %w", t.Name(), metaOffset, fields.ErrCorrupt)
	}
	t.entriesSize = int64(metaOffset)

	// Metadata blocks sit between the rows and the footer.
	meta := io.NewSectionReader(t.file, t.entriesSize, t.size-footerSize-t.entriesSize)
	if t.filter, err = bloom.Decode(meta); err != nil {
		return fmt.Errorf("table %s: %w", t.Name(), err)
	}
	if t.searchIndex, err = SearchIndexDecode(meta, t.entriesSize); err != nil {
		return fmt.Errorf("table %s: %w", t.Name(), err)
	}
	if t.startKey, err = fields.ReadVarBytes(meta); err != nil {
		return fmt.Errorf("table %s start key: %w", t.Name(), err)
	}
	if t.endKey, err = fields.ReadVarBytes(meta); err != nil {
		return fmt.Errorf("table %s end key: %w", t.Name(), err)
	}
	if t.minSeqNum, err = fields.ReadUint64(meta); err != nil {
		return fmt.Errorf("table %s min seq num: %w", t.Name(), err)
	}
	if t.maxSeqNum, err = fields.ReadUint64(meta); err != nil {
		return fmt.Errorf("table %s max seq num: %w", t.Name(), err)
	}
	rowCount, err := fields.ReadUint64(meta)
	if err != nil {
		return fmt.Errorf("table %s row count: %w", t.Name(), err)
	}
	t.rowCount = int64(rowCount)

	return nil
}
