package linecode

import (
	"errors"
	"fmt"
)

var (
	// ErrEncodingRange — символ не помещается в один байт.
	ErrEncodingRange = errors.New("character out of single-byte range")

	// ErrInvalidBinary — в бинарной строке есть символы кроме '0' и '1'.
	ErrInvalidBinary = errors.New("invalid binary string")
)

// RangeError описывает символ с кодом больше 255.
type RangeError struct {
	Index int  // позиция символа (в рунах)
	Rune  rune // сам символ
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %q (U+%04X) at index %d", ErrEncodingRange, e.Rune, e.Rune, e.Index)
}

func (e *RangeError) Unwrap() error {
	return ErrEncodingRange
}
