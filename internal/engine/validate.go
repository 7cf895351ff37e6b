package engine

import (
	"fmt"
	"unicode/utf8"
)

func validateKey(key string) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w (%d > %d bytes)", ErrKeyTooLarge, len(key), MaxKeySize)
	}
	if !utf8.ValidString(key) {
		return ErrInvalidText
	}
	return nil
}

func validate(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w (%d > %d bytes)", ErrValueTooLarge, len(value), MaxValueSize)
	}
	if !utf8.ValidString(value) {
		return ErrInvalidText
	}
	return nil
}
