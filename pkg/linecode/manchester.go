package linecode

import (
	"fmt"
	"strconv"
	"strings"
)

// ViolationMark ставится в декодированную строку на месте недопустимой пары.
const ViolationMark = 'X'

// Sequence — последовательность символов линии (0 или 1).
// Хранится как []int, чтобы в JSON попадать массивом чисел.
type Sequence []int

// String возвращает последовательность в виде "1001...".
func (s Sequence) String() string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, v := range s {
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}

// Violation — нарушение линейного кода при декодировании.
type Violation struct {
	Bit      int  // номер бита
	Pair     Pair // принятая пара
	Trailing bool // непарный последний символ
}

func (v Violation) String() string {
	if v.Trailing {
		return fmt.Sprintf("bit %d: trailing symbol %d", v.Bit, v.Pair[0])
	}
	return fmt.Sprintf("bit %d: illegal pair %s", v.Bit, v.Pair)
}

// Decoded — результат декодирования.
type Decoded struct {
	Binary     string
	Violations []Violation
}

// OK сообщает, что нарушений не было.
func (d Decoded) OK() bool {
	return len(d.Violations) == 0
}

// Codec кодирует и декодирует манчестерский код по заданной конвенции.
type Codec struct {
	conv Convention
}

// New создаёт кодек.
func New(conv Convention) *Codec {
	return &Codec{conv: conv}
}

// Convention возвращает конвенцию кодека.
func (c *Codec) Convention() Convention {
	return c.conv
}

// Encode переводит каждый бит в пару символов.
func (c *Codec) Encode(bin string) (Sequence, error) {
	if i := indexInvalid(bin); i >= 0 {
		return nil, fmt.Errorf("%w: %q at position %d", ErrInvalidBinary, bin[i], i)
	}

	seq := make(Sequence, 0, len(bin)*2)
	for i := range len(bin) {
		p := c.conv.pairFor(bin[i])
		seq = append(seq, p[0], p[1])
	}
	return seq, nil
}

// Decode переводит пары обратно в биты.
// Недопустимые пары (00, 11, символы вне {0,1}) не прерывают разбор:
// на их месте ставится ViolationMark, позиция попадает в Violations.
func (c *Codec) Decode(seq Sequence) Decoded {
	var sb strings.Builder
	sb.Grow(len(seq) / 2)

	var out Decoded
	for i := 0; i < len(seq); i += 2 {
		bit := i / 2
		if i+1 >= len(seq) {
			out.Violations = append(out.Violations, Violation{Bit: bit, Pair: Pair{seq[i], 0}, Trailing: true})
			break
		}

		p := Pair{seq[i], seq[i+1]}
		b := c.conv.bitFor(p)
		if b == 0 {
			sb.WriteByte(ViolationMark)
			out.Violations = append(out.Violations, Violation{Bit: bit, Pair: p})
			continue
		}
		sb.WriteByte(b)
	}

	out.Binary = sb.String()
	return out
}
