package storage

import (
	"errors"
	"fmt"
	"io"
)

// Cursor reads a byte range of a file sequentially. Reads past the end of the
// range return io.EOF.
type Cursor struct {
	file       io.ReaderAt
	offset     int64
	start, end int64
}

func NewBoundedCursor(reader io.ReaderAt, start, end uint64) *Cursor {
	return &Cursor{file: reader, offset: int64(start), start: int64(start), end: int64(end)}
}

// Move sets the offset of the next read. Panics outside of the range.
func (c *Cursor) Move(offset int64) {
	if offset < c.start || offset > c.end {
		panic(fmt.Sprintf("cursor move to %d outside of [%d, %d]", offset, c.start, c.end))
	}
	c.offset = offset
}

func (c *Cursor) Read(p []byte) (int, error) {
	remaining := c.end - c.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := c.file.ReadAt(p, c.offset)
	c.offset += int64(n)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

func (c *Cursor) Offset() int64 { return c.offset }

// ReadAll reads the whole saved file.
func ReadAll(file File) ([]byte, error) {
	size, err := file.Size()
	if err != nil {
		return nil, err
	}
	return io.ReadAll(NewBoundedCursor(file, 0, uint64(size)))
}

var _ io.Reader = (*Cursor)(nil)
