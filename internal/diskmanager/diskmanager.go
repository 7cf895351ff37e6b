// Package diskmanager provides the file abstractions segment files are built on.
// Writable segments go through plain file handles; archived segments are mapped read-only.
package diskmanager

import (
	"errors"
	"os"
	"sort"
	"strings"

	"golang.org/x/exp/mmap"
)

// ErrReadOnly is returned when writing to a mapped handle.
var ErrReadOnly = errors.New("diskmanager: handle is read-only")

// FileHandle abstracts random-access file operations.
type FileHandle interface {
	// ReadAt reads len(b) bytes from the file starting at byte offset off.
	ReadAt(b []byte, off int64) (int, error)
	// WriteAt writes len(b) bytes to the file starting at byte offset off.
	WriteAt(b []byte, off int64) (int, error)
	// Close releases the handle.
	Close() error
	// Sync commits written bytes to stable storage.
	Sync() error
	// Size returns the current length of the file.
	Size() (int64, error)
	// Truncate changes the length of the file.
	Truncate(size int64) error
}

type fileHandle struct {
	file *os.File
}

// NewFileHandle wraps an *os.File into a FileHandle implementation.
func NewFileHandle(file *os.File) FileHandle { return &fileHandle{file: file} }

func (fh *fileHandle) ReadAt(b []byte, off int64) (int, error) { return fh.file.ReadAt(b, off) }

func (fh *fileHandle) WriteAt(b []byte, off int64) (int, error) { return fh.file.WriteAt(b, off) }

func (fh *fileHandle) Close() error { return fh.file.Close() }

func (fh *fileHandle) Sync() error { return fh.file.Sync() }

func (fh *fileHandle) Truncate(size int64) error { return fh.file.Truncate(size) }

func (fh *fileHandle) Size() (int64, error) {
	info, err := fh.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type mappedHandle struct {
	r *mmap.ReaderAt
}

func (mh *mappedHandle) ReadAt(b []byte, off int64) (int, error) { return mh.r.ReadAt(b, off) }

func (mh *mappedHandle) WriteAt([]byte, int64) (int, error) { return 0, ErrReadOnly }

func (mh *mappedHandle) Close() error { return mh.r.Close() }

func (mh *mappedHandle) Sync() error { return nil }

func (mh *mappedHandle) Size() (int64, error) { return int64(mh.r.Len()), nil }

func (mh *mappedHandle) Truncate(int64) error { return ErrReadOnly }

// DiskManager defines methods for file operations.
type DiskManager interface {
	// Open opens a file with specified path, flags and permissions.
	// If the file is already open, returns the existing handle.
	Open(path string, flags int, perm os.FileMode) (FileHandle, error)
	// Map opens an existing file read-only through a memory mapping.
	Map(path string) (FileHandle, error)
	// List returns the sorted names of regular files in dir that contain the filter string.
	// Empty filter matches all files.
	List(dir string, filter string) ([]string, error)
	// Close closes the handle for the file at path if it exists.
	Close(path string) error
}

type diskManager struct {
	fileHandles map[string]FileHandle
}

// NewDiskManager creates a new DiskManager instance.
func NewDiskManager() DiskManager {
	return &diskManager{
		fileHandles: make(map[string]FileHandle),
	}
}

// Open opens a file with the given flags and permissions.
// It caches the file handle keyed by path.
func (dm *diskManager) Open(path string, flags int, perm os.FileMode) (FileHandle, error) {
	if handle, exists := dm.fileHandles[path]; exists {
		return handle, nil
	}
	file, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return nil, err
	}
	handle := NewFileHandle(file)
	dm.fileHandles[path] = handle
	return handle, nil
}

func (dm *diskManager) Map(path string) (FileHandle, error) {
	if handle, exists := dm.fileHandles[path]; exists {
		return handle, nil
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	handle := &mappedHandle{r: r}
	dm.fileHandles[path] = handle
	return handle, nil
}

func (dm *diskManager) List(dir string, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filter == "" || strings.Contains(entry.Name(), filter) {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func (dm *diskManager) Close(path string) error {
	handle, exists := dm.fileHandles[path]
	if !exists {
		return nil
	}
	delete(dm.fileHandles, path)
	return handle.Close()
}
