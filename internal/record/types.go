package record

import (
	"errors"
	"fmt"
)

var (
	// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
	ErrShortHeader = errors.New("record: short header")
	// ErrShortPayload is returned when the key and value bytes are cut short.
	ErrShortPayload = errors.New("record: short payload")
	// ErrInvalidEntry is returned when encoding an entry that is not marked valid.
	ErrInvalidEntry = errors.New("record: invalid entry")
	// ErrChecksumMismatch is returned when the value does not match the stored checksum.
	ErrChecksumMismatch = errors.New("record: checksum mismatch")
)

// Mark is the operation an entry records.
type Mark byte

const (
	// SetMark stores a value.
	SetMark Mark = iota
	// SetWithExpireMark stores a value whose timestamp is an absolute expiry deadline.
	SetWithExpireMark
	// DeleteMark is a tombstone for a single key.
	DeleteMark
	// ClearMark wipes every key replayed before it.
	ClearMark
)

func (m Mark) String() string {
	switch m {
	case SetMark:
		return "set"
	case SetWithExpireMark:
		return "set_with_expire"
	case DeleteMark:
		return "delete"
	case ClearMark:
		return "clear"
	default:
		return fmt.Sprintf("mark(%d)", byte(m))
	}
}

// Header holds the fixed-size fields of an encoded entry.
type Header struct {
	Checksum  uint32
	KeySize   uint32
	ValueSize uint32
	Reserved  byte
	Mark      Mark
	Timestamp uint64
}

// PayloadSize is the number of key and value bytes following the header.
func (h Header) PayloadSize() int64 {
	return int64(h.KeySize) + int64(h.ValueSize)
}

// Size is the total encoded size of the entry described by h.
func (h Header) Size() int64 {
	return HeaderSize + h.PayloadSize()
}

// Entry is one immutable log record.
type Entry struct {
	Header
	Key   []byte
	Value []byte
	// Valid is set for freshly built entries and for decoded entries whose checksum verified.
	Valid bool
}

// NewEntry builds a valid entry. For SetWithExpireMark the timestamp is the deadline,
// otherwise it is the write time.
func NewEntry(mark Mark, key, value []byte, timestamp uint64) Entry {
	return Entry{
		Header: Header{
			KeySize:   uint32(len(key)),
			ValueSize: uint32(len(value)),
			Mark:      mark,
			Timestamp: timestamp,
		},
		Key:   key,
		Value: value,
		Valid: true,
	}
}
