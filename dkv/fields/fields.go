// Package fields encodes the little-endian fields that make up table rows and
// table metadata.
package fields

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCorrupt is returned when a decoded field can't be valid.
var ErrCorrupt = errors.New("corrupt field")

// MaxVarBytesLen bounds the length prefix of VarBytes so that a damaged
// prefix fails instead of allocating.
const MaxVarBytesLen = 64 << 20

// VarBytes

func WriteVarBytes(w io.Writer, data []byte) (int, error) {
	if len(data) > MaxVarBytesLen {
		return 0, fmt.Errorf("writing %d bytes, max is %d", len(data), MaxVarBytesLen)
	}

	// Write length
	n, err := WriteUint32(w, uint32(len(data)))
	if err != nil {
		return n, err
	}

	// Write data
	n2, err := w.Write(data)
	return n + n2, err
}

func ReadVarBytes(r io.Reader) ([]byte, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	if length > MaxVarBytesLen {
		return nil, fmt.Errorf("var bytes length %d: %w", length, ErrCorrupt)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, unexpectedEOF(err)
	}
	return data, nil
}

func SkipVarBytes(r io.Reader) error {
	length, err := ReadUint32(r)
	if err != nil {
		return err
	}
	if length > MaxVarBytesLen {
		return fmt.Errorf("var bytes length %d: %w", length, ErrCorrupt)
	}

	_, err = io.CopyN(io.Discard, r, int64(length))
	return unexpectedEOF(err)
}

// Tombstone

func WriteTombstone(w io.Writer, deleted bool) (int, error) {
	b := []byte{0}
	if deleted {
		b[0] = 1
	}
	return w.Write(b)
}

func ReadTombstone(r io.Reader) (bool, error) {
	marker := make([]byte, 1)
	if _, err := io.ReadFull(r, marker); err != nil {
		return false, unexpectedEOF(err)
	}
	switch marker[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("tombstone marker %d: %w", marker[0], ErrCorrupt)
	}
}

// Uint64

func WriteUint64(w io.Writer, v uint64) (int, error) {
	return w.Write(binary.LittleEndian.AppendUint64(nil, v))
}

func ReadUint64(r io.Reader) (uint64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, unexpectedEOF(err)
	}
	return binary.LittleEndian.Uint64(b), nil
}

func SkipUint64(r io.Reader) error {
	_, err := io.CopyN(io.Discard, r, 8)
	return unexpectedEOF(err)
}

// Uint32

func WriteUint32(w io.Writer, v uint32) (int, error) {
	return w.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func ReadUint32(r io.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Only the first read of a row may end cleanly with io.EOF. Running out of
// data partway through a row is a truncated row.
func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ErrWriter counts bytes written and keeps the first error so a sequence of
// field writes can be checked once.
type ErrWriter struct {
	W   io.Writer
	N   int64
	Err error
}

func (ew *ErrWriter) Write(p []byte) (int, error) {
	if ew.Err != nil {
		return 0, ew.Err
	}
	n, err := ew.W.Write(p)
	ew.N += int64(n)
	ew.Err = err
	return n, err
}
