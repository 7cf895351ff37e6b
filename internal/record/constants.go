// Package record implements the binary encoding of a single log entry.
//
// Layout (big-endian):
//
//	[4 checksum][4 key size][4 value size][2 state][8 timestamp][key][value]
//
// The high byte of state is reserved and always zero; the low byte is the operation mark.
package record

const (
	ChecksumSize  = 4
	LengthSize    = 4
	StateSize     = 2
	TimestampSize = 8

	// HeaderSize is the fixed size of an encoded entry header.
	HeaderSize = ChecksumSize + 2*LengthSize + StateSize + TimestampSize // 22 bytes
)

const (
	keySizeOffset   = ChecksumSize
	valueSizeOffset = keySizeOffset + LengthSize
	stateOffset     = valueSizeOffset + LengthSize
	timestampOffset = stateOffset + StateSize
)
