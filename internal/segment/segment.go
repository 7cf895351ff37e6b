// Package segment implements append-only segment files named <id>.data.
package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/MikhailWahib/minicask/internal/diskmanager"
	"github.com/MikhailWahib/minicask/internal/record"
)

// FileExt is the extension of segment files.
const FileExt = ".data"

var (
	// ErrClosed is returned by any operation on a closed segment.
	ErrClosed = errors.New("segment: closed")
	// ErrEndOfSegment is returned when reading at or past the end of the segment.
	ErrEndOfSegment = errors.New("segment: end of segment")
	// ErrTruncated is returned when a record extends past the end of the segment.
	ErrTruncated = errors.New("segment: truncated record")
)

var fileNamePattern = regexp.MustCompile(`^([1-9][0-9]*)\.data$`)

// FileName returns the file name of segment id.
func FileName(id uint64) string {
	return strconv.FormatUint(id, 10) + FileExt
}

// ParseFileName extracts the segment id from a file name.
func ParseFileName(name string) (uint64, bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Segment is one numbered log file. It is not safe for concurrent use.
type Segment struct {
	id       uint64
	path     string
	dm       diskmanager.DiskManager
	fh       diskmanager.FileHandle
	offset   int64
	readOnly bool
	closed   bool
}

// Open opens an existing segment for read and write. Writes append at the current file length.
func Open(dm diskmanager.DiskManager, dir string, id uint64) (*Segment, error) {
	return open(dm, dir, id, os.O_RDWR)
}

// Create opens segment id for writing, creating the file if needed.
func Create(dm diskmanager.DiskManager, dir string, id uint64) (*Segment, error) {
	return open(dm, dir, id, os.O_RDWR|os.O_CREATE)
}

// OpenArchived opens an existing segment read-only through a memory mapping.
func OpenArchived(dm diskmanager.DiskManager, dir string, id uint64) (*Segment, error) {
	path := filepath.Join(dir, FileName(id))
	fh, err := dm.Map(path)
	if err != nil {
		return nil, fmt.Errorf("map segment %d: %w", id, err)
	}
	return newSegment(dm, fh, path, id, true)
}

func open(dm diskmanager.DiskManager, dir string, id uint64, flags int) (*Segment, error) {
	path := filepath.Join(dir, FileName(id))
	fh, err := dm.Open(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open segment %d: %w", id, err)
	}
	return newSegment(dm, fh, path, id, false)
}

func newSegment(dm diskmanager.DiskManager, fh diskmanager.FileHandle, path string, id uint64, readOnly bool) (*Segment, error) {
	size, err := fh.Size()
	if err != nil {
		_ = dm.Close(path)
		return nil, fmt.Errorf("stat segment %d: %w", id, err)
	}

	return &Segment{
		id:       id,
		path:     path,
		dm:       dm,
		fh:       fh,
		offset:   size,
		readOnly: readOnly,
	}, nil
}

// ID returns the segment id.
func (s *Segment) ID() uint64 { return s.id }

// Path returns the segment file path.
func (s *Segment) Path() string { return s.path }

// Size returns the tracked write offset, which equals the file length.
func (s *Segment) Size() int64 { return s.offset }

// Closed reports whether Close has been called.
func (s *Segment) Closed() bool { return s.closed }

// Read decodes the entry starting at offset. The header is read first and sizes the payload read.
//
// ErrEndOfSegment marks a clean end. Errors for which IsCorruption reports true mark a
// damaged record; any other error is an I/O failure.
func (s *Segment) Read(offset int64) (record.Entry, error) {
	if s.closed {
		return record.Entry{}, ErrClosed
	}
	if offset >= s.offset {
		return record.Entry{}, ErrEndOfSegment
	}
	if offset+record.HeaderSize > s.offset {
		return record.Entry{}, ErrTruncated
	}

	headerBuf := make([]byte, record.HeaderSize)
	if _, err := s.fh.ReadAt(headerBuf, offset); err != nil {
		return record.Entry{}, fmt.Errorf("read header at %d: %w", offset, err)
	}

	h, err := record.DecodeHeader(headerBuf)
	if err != nil {
		return record.Entry{}, err
	}
	if offset+h.Size() > s.offset {
		return record.Entry{}, ErrTruncated
	}

	buf := make([]byte, h.Size())
	copy(buf, headerBuf)
	if _, err := s.fh.ReadAt(buf[record.HeaderSize:], offset+record.HeaderSize); err != nil {
		return record.Entry{}, fmt.Errorf("read payload at %d: %w", offset, err)
	}

	e, _, err := record.Decode(buf)
	return e, err
}

// IsCorruption reports whether err from Read describes damaged bytes rather than a failed read.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrTruncated) ||
		errors.Is(err, record.ErrShortHeader) ||
		errors.Is(err, record.ErrShortPayload) ||
		errors.Is(err, record.ErrChecksumMismatch)
}

// Write appends e in a single write and advances the offset. It does not sync.
func (s *Segment) Write(e record.Entry) error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return diskmanager.ErrReadOnly
	}

	buf, err := record.Encode(e)
	if err != nil {
		return err
	}

	if _, err := s.fh.WriteAt(buf, s.offset); err != nil {
		return fmt.Errorf("append to segment %d: %w", s.id, err)
	}

	s.offset += int64(len(buf))
	return nil
}

// Truncate cuts the segment back to size, discarding a damaged tail so later appends
// follow the last valid record.
func (s *Segment) Truncate(size int64) error {
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return diskmanager.ErrReadOnly
	}
	if size < 0 || size > s.offset {
		return fmt.Errorf("truncate segment %d to %d: out of range [0, %d]", s.id, size, s.offset)
	}
	if err := s.fh.Truncate(size); err != nil {
		return fmt.Errorf("truncate segment %d: %w", s.id, err)
	}
	s.offset = size
	return nil
}

// Sync commits written bytes to stable storage.
func (s *Segment) Sync() error {
	if s.closed {
		return ErrClosed
	}
	return s.fh.Sync()
}

// Close syncs and releases the file handle. The segment is unusable afterwards.
func (s *Segment) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	syncErr := s.fh.Sync()
	closeErr := s.dm.Close(s.path)
	if err := errors.Join(syncErr, closeErr); err != nil {
		return fmt.Errorf("close segment %d: %w", s.id, err)
	}
	return nil
}
