package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

type LocalFilesystem struct {
	Dir string
}

func NewLocalFilesystem(dir string) (*LocalFilesystem, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating local filesystem: %w", err)
	}
	return &LocalFilesystem{dir}, nil
}

func (fs *LocalFilesystem) New(path string) File {
	if filepath.IsAbs(path) {
		panic(fmt.Sprintf("creating a file with absolute path (%s) not supported", path))
	}
	pathDir := filepath.Dir(path)
	return &DiskFile{
		name:     filepath.Base(path),
		dir:      filepath.Join(fs.Dir, pathDir),
		fileMode: FILE_MODE_WRITE,
	}
}

func (fs *LocalFilesystem) Open(path string) File {
	var dir string
	if filepath.IsAbs(path) {
		dir = filepath.Dir(path)
	} else {
		dir = filepath.Join(fs.Dir, filepath.Dir(path))
	}

	return &DiskFile{
		name:     filepath.Base(path),
		dir:      dir,
		fileMode: FILE_MODE_READ,
	}
}

func (fs *LocalFilesystem) List() ([]string, error) {
	var fileNames []string
	err := filepath.WalkDir(fs.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Only include files (not their directories)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fs.Dir, path)
		if err != nil {
			return err
		}
		fileNames = append(fileNames, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(fileNames)
	return fileNames, nil
}

var _ FileSystem = (*LocalFilesystem)(nil)

type DiskFile struct {
	osFile   *os.File
	name     string
	dir      string
	fileMode FileMode
	size     int64
}

func (d *DiskFile) ReadAt(b []byte, off int64) (n int, err error) {
	file, err := d.openFile()
	if err != nil {
		return 0, err
	}
	return file.ReadAt(b, off)
}

// Save syncs the temporary file and moves it into place.
func (d *DiskFile) Save() error {
	if d.fileMode == FILE_MODE_READ {
		panic("tried to save a read only file")
	}
	file, err := d.tmpFile()
	if err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	if err := os.Rename(file.Name(), d.path()); err != nil {
		return err
	}
	d.fileMode = FILE_MODE_READ
	return nil
}

// Lazily open the file
func (d *DiskFile) openFile() (*os.File, error) {
	if d.osFile != nil {
		return d.osFile, nil
	}
	f, err := os.Open(d.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("opening %s: %w", d.path(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	d.osFile = f
	return f, nil
}

// Lazily create the tmp file
func (d *DiskFile) tmpFile() (*os.File, error) {
	if d.osFile != nil {
		return d.osFile, nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(d.dir, d.name+".tmp")
	if err != nil {
		return nil, err
	}
	d.osFile = f
	return f, nil
}

func (d *DiskFile) Write(b []byte) (n int, err error) {
	if d.fileMode == FILE_MODE_READ {
		panic("tried to write to a read only file")
	}
	file, err := d.tmpFile()
	if err != nil {
		return 0, err
	}
	n, err = file.Write(b)
	d.size += int64(n)
	return n, err
}

func (d *DiskFile) Delete() error {
	if d.fileMode == FILE_MODE_WRITE {
		panic("tried to delete a file being written")
	}
	if d.osFile != nil {
		d.osFile.Close()
		d.osFile = nil
	}
	return os.Remove(d.path())
}

func (d *DiskFile) Size() (int64, error) {
	if d.fileMode == FILE_MODE_WRITE {
		return d.size, nil
	}
	info, err := os.Stat(d.path())
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("stat %s: %w", d.path(), ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *DiskFile) Name() string {
	return d.name
}

func (d *DiskFile) URI() string {
	absPath, err := filepath.Abs(d.path())
	if err != nil {
		panic(fmt.Sprintf("failed to get absolute path to %s: %v", d.path(), err))
	}
	return absPath
}

func (d *DiskFile) path() string {
	return filepath.Join(d.dir, d.name)
}

var _ File = (*DiskFile)(nil)
