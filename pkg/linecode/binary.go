package linecode

import (
	"fmt"
	"strings"
)

// BitsPerChar — количество бит на символ.
const BitsPerChar = 8

// TextToBinary переводит каждый символ в 8 бит его кода.
// Символ с кодом больше 255 — ошибка *RangeError, усечения нет.
func TextToBinary(text string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(text) * BitsPerChar)

	idx := 0
	for _, r := range text {
		if r < 0 || r > 0xFF {
			return "", &RangeError{Index: idx, Rune: r}
		}
		for shift := BitsPerChar - 1; shift >= 0; shift-- {
			if (r>>shift)&1 == 1 {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		idx++
	}

	return sb.String(), nil
}

// BinaryToText собирает символы из групп по 8 бит.
// Неполная последняя группа отбрасывается.
func BinaryToText(bin string) (string, error) {
	if i := indexInvalid(bin); i >= 0 {
		return "", fmt.Errorf("%w: %q at position %d", ErrInvalidBinary, bin[i], i)
	}

	var sb strings.Builder
	for i := 0; i+BitsPerChar <= len(bin); i += BitsPerChar {
		var code rune
		for _, c := range bin[i : i+BitsPerChar] {
			code = code<<1 | rune(c-'0')
		}
		sb.WriteRune(code)
	}
	return sb.String(), nil
}

// indexInvalid возвращает позицию первого символа не из {'0','1'} или -1.
func indexInvalid(s string) int {
	for i := range len(s) {
		if s[i] != '0' && s[i] != '1' {
			return i
		}
	}
	return -1
}
