// Package mockdm provides an in-memory disk manager for tests, with fault injection.
package mockdm

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/MikhailWahib/minicask/internal/diskmanager"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("mockdm: injected fault")

// MockFile implements diskmanager.FileHandle over a byte slice.
type MockFile struct {
	dm   *MockDiskManager
	data []byte
	name string
}

// WriteAt writes len(b) bytes to the file starting at byte offset off
func (m *MockFile) WriteAt(b []byte, off int64) (int, error) {
	if err := m.dm.writeErr(); err != nil {
		return 0, err
	}
	requiredLen := int(off) + len(b)
	if requiredLen > len(m.data) {
		newData := make([]byte, requiredLen)
		copy(newData, m.data)
		m.data = newData
	}
	return copy(m.data[off:], b), nil
}

// ReadAt reads len(b) bytes from the file starting at byte offset off
func (m *MockFile) ReadAt(b []byte, off int64) (int, error) {
	if err := m.dm.readErr(off); err != nil {
		return 0, err
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(b, m.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

// Close closes the mock file
func (m *MockFile) Close() error {
	return nil
}

// Sync simulates syncing file contents to disk
func (m *MockFile) Sync() error {
	return m.dm.syncErr()
}

// Size returns the current length of the file
func (m *MockFile) Size() (int64, error) {
	return int64(len(m.data)), nil
}

// Truncate shortens or zero-extends the file
func (m *MockFile) Truncate(size int64) error {
	if err := m.dm.writeErr(); err != nil {
		return err
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	newData := make([]byte, size)
	copy(newData, m.data)
	m.data = newData
	return nil
}

// Bytes returns the raw contents of the file
func (m *MockFile) Bytes() []byte {
	return m.data
}

// MockDiskManager implements diskmanager.DiskManager for testing.
// Files survive Close, so a store can be reopened against the same manager.
type MockDiskManager struct {
	mu        sync.Mutex
	files     map[string]*MockFile
	failWrite error
	failSync  error
	failRead  error
	readFrom  int64
}

// NewMockDiskManager creates a new MockDiskManager instance
func NewMockDiskManager() *MockDiskManager {
	return &MockDiskManager{
		files: make(map[string]*MockFile),
	}
}

// FailWrites makes every subsequent WriteAt return err. A nil err clears the fault.
func (dm *MockDiskManager) FailWrites(err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.failWrite = err
}

// FailSyncs makes every subsequent Sync return err. A nil err clears the fault.
func (dm *MockDiskManager) FailSyncs(err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.failSync = err
}

// FailReads makes every subsequent ReadAt at an offset of at least from return err.
// A nil err clears the fault.
func (dm *MockDiskManager) FailReads(from int64, err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.failRead = err
	dm.readFrom = from
}

func (dm *MockDiskManager) readErr(off int64) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if off < dm.readFrom {
		return nil
	}
	return dm.failRead
}

func (dm *MockDiskManager) writeErr() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.failWrite
}

func (dm *MockDiskManager) syncErr() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.failSync
}

// File returns the mock file stored at path, if any
func (dm *MockDiskManager) File(path string) (*MockFile, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	f, ok := dm.files[path]
	return f, ok
}

// Open creates or opens a mock file. Without os.O_CREATE a missing file is an error.
func (dm *MockDiskManager) Open(path string, flags int, _ os.FileMode) (diskmanager.FileHandle, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if file, exists := dm.files[path]; exists {
		return file, nil
	}
	if flags&os.O_CREATE == 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
	}

	file := &MockFile{
		dm:   dm,
		data: []byte{},
		name: path,
	}
	dm.files[path] = file
	return file, nil
}

// Map opens an existing mock file; writes still go through the fault hooks.
func (dm *MockDiskManager) Map(path string) (diskmanager.FileHandle, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	file, exists := dm.files[path]
	if !exists {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: os.ErrNotExist}
	}
	return file, nil
}

// List returns the base names of mock files in dir matching the filter
func (dm *MockDiskManager) List(dir string, filter string) ([]string, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var files []string
	for path := range dm.files {
		if filepath.Dir(path) != filepath.Clean(dir) {
			continue
		}
		name := filepath.Base(path)
		if filter == "" || strings.Contains(name, filter) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Close closes a mock file
func (dm *MockDiskManager) Close(_ string) error {
	return nil
}
