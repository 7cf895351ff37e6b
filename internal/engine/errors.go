package engine

import "errors"

// Size limits applied to every key and value.
const (
	MaxKeySize   = 100
	MaxValueSize = 100
)

var (
	// ErrEmptyKey is returned for a zero-length key.
	ErrEmptyKey = errors.New("key must not be empty")
	// ErrKeyTooLarge is returned for keys longer than MaxKeySize bytes.
	ErrKeyTooLarge = errors.New("key exceeds maximum size")
	// ErrValueTooLarge is returned for values longer than MaxValueSize bytes.
	ErrValueTooLarge = errors.New("value exceeds maximum size")
	// ErrInvalidText is returned when a key or value is not valid UTF-8.
	ErrInvalidText = errors.New("key and value must be valid UTF-8")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine is closed")
)

// IsValidationError reports whether err rejects a request before any I/O.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyKey) ||
		errors.Is(err, ErrKeyTooLarge) ||
		errors.Is(err, ErrValueTooLarge) ||
		errors.Is(err, ErrInvalidText)
}
