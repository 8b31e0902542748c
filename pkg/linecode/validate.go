package linecode

import "fmt"

// BitError — расхождение кодирования в одном бите.
type BitError struct {
	Bit      int  // номер бита; -1 для ошибки длины
	Want     Pair // ожидаемая пара
	Got      Pair // принятая пара
	Expected int  // ожидаемая длина последовательности (только для ошибки длины)
	Actual   int  // фактическая длина последовательности (только для ошибки длины)
}

// LengthMismatch сообщает, что это ошибка длины.
func (e BitError) LengthMismatch() bool {
	return e.Bit < 0
}

func (e BitError) String() string {
	if e.LengthMismatch() {
		return fmt.Sprintf("length mismatch: want %d symbols, got %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("bit %d: want %s, got %s", e.Bit, e.Want, e.Got)
}

// Report — результат проверки кодирования.
type Report struct {
	Valid  bool
	Errors []BitError
}

// Validate заново кодирует bin и сравнивает с seq побитово.
// Расхождение длины — одна ошибка, дальше проверка не идёт.
// Иначе сообщается о каждом расходящемся бите.
func (c *Codec) Validate(bin string, seq Sequence) Report {
	if len(seq) != 2*len(bin) {
		return Report{Errors: []BitError{{
			Bit:      -1,
			Expected: 2 * len(bin),
			Actual:   len(seq),
		}}}
	}

	var errs []BitError
	for i := range len(bin) {
		got := Pair{seq[2*i], seq[2*i+1]}

		var want Pair
		switch bin[i] {
		case '0':
			want = c.conv.Zero
		case '1':
			want = c.conv.One
		default:
			// Бит не определён — любая пара считается расхождением.
			errs = append(errs, BitError{Bit: i, Got: got})
			continue
		}

		if got != want {
			errs = append(errs, BitError{Bit: i, Want: want, Got: got})
		}
	}

	return Report{Valid: len(errs) == 0, Errors: errs}
}
