package record

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Checksum hashes the value bytes with xxhash and folds the digest to 32 bits.
func Checksum(value []byte) uint32 {
	return uint32(xxhash.Sum64(value) & 0xffffffff)
}

// Encode serializes e and stamps the checksum of its value into the header.
func Encode(e Entry) ([]byte, error) {
	if !e.Valid {
		return nil, ErrInvalidEntry
	}

	keyLen := len(e.Key)
	valueLen := len(e.Value)
	buf := make([]byte, HeaderSize+keyLen+valueLen)

	binary.BigEndian.PutUint32(buf[keySizeOffset:], uint32(keyLen))
	binary.BigEndian.PutUint32(buf[valueSizeOffset:], uint32(valueLen))
	binary.BigEndian.PutUint16(buf[stateOffset:], uint16(e.Reserved)<<8|uint16(e.Mark))
	binary.BigEndian.PutUint64(buf[timestampOffset:], e.Timestamp)
	copy(buf[HeaderSize:], e.Key)
	copy(buf[HeaderSize+keyLen:], e.Value)

	binary.BigEndian.PutUint32(buf[0:ChecksumSize], Checksum(e.Value))

	return buf, nil
}

// DecodeHeader parses the fixed header so the caller can size the payload read.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortHeader
	}

	state := binary.BigEndian.Uint16(buf[stateOffset:])

	return Header{
		Checksum:  binary.BigEndian.Uint32(buf[0:ChecksumSize]),
		KeySize:   binary.BigEndian.Uint32(buf[keySizeOffset:]),
		ValueSize: binary.BigEndian.Uint32(buf[valueSizeOffset:]),
		Reserved:  byte(state >> 8),
		Mark:      Mark(state & 0xff),
		Timestamp: binary.BigEndian.Uint64(buf[timestampOffset:]),
	}, nil
}

// Verify recomputes the value checksum and sets Valid accordingly.
func (e *Entry) Verify() error {
	e.Valid = Checksum(e.Value) == e.Checksum
	if !e.Valid {
		return ErrChecksumMismatch
	}
	return nil
}

// Decode parses a whole entry from buf and returns it with the number of bytes consumed.
// The returned entry has been verified; on a checksum mismatch it is returned invalid
// together with ErrChecksumMismatch.
func Decode(buf []byte) (Entry, int, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Entry{}, 0, err
	}

	total := h.Size()
	if int64(len(buf)) < total {
		return Entry{}, 0, ErrShortPayload
	}

	keyEnd := HeaderSize + int(h.KeySize)
	e := Entry{
		Header: h,
		Key:    buf[HeaderSize:keyEnd],
		Value:  buf[keyEnd:total],
	}
	if err := e.Verify(); err != nil {
		return e, int(total), err
	}

	return e, int(total), nil
}
