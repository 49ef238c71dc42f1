package storage

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

type FileSystem interface {
	New(path string) File
	Open(path string) File
	// List returns the names of saved files relative to the file system's
	// root, sorted ascending.
	List() ([]string, error)
}

type File interface {
	io.ReaderAt
	io.Writer
	Save() error
	Name() string
	Delete() error
	URI() string
	// Size returns the number of bytes written, or for an opened file, the
	// size of the saved file.
	Size() (int64, error)
}

type FileMode int

const FILE_MODE_READ = 0
const FILE_MODE_WRITE = 1

var ErrNotFound = errors.New("file not found")

// NewFileSystemFromLocation picks a file system for a location string:
// "memory://dir", "s3://bucket/prefix", or a local directory path.
func NewFileSystemFromLocation(location string) (FileSystem, error) {
	if strings.HasPrefix(location, memoryProtocol) {
		workingDir := strings.TrimPrefix(location, memoryProtocol)
		return NewMemoryFilesystem().WithWorkingDir(workingDir), nil
	}

	if strings.HasPrefix(location, s3Protocol) {
		fs, err := NewS3FileSystemFromURI(location)
		if err != nil {
			return nil, fmt.Errorf("s3 location %s: %w", location, err)
		}
		return fs, nil
	}

	if location == "" {
		return nil, errors.New("empty storage location")
	}
	return NewLocalFilesystem(location)
}
