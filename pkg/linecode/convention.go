// Package linecode реализует побитовое кодирование текста и манчестерский
// линейный код.
package linecode

import (
	"fmt"
	"strings"
)

// Pair — пара символов линии, кодирующая один бит.
type Pair [2]int

// String возвращает пару в виде "10".
func (p Pair) String() string {
	return fmt.Sprintf("%d%d", p[0], p[1])
}

// Convention — таблица отображения бит → пара символов.
// Оба конца линии должны использовать одну и ту же конвенцию:
// протокол её не согласует.
type Convention struct {
	Name string
	Zero Pair
	One  Pair
}

// Конвенции полярности.
var (
	// IEEE8023: 0 → 10 (спад), 1 → 01 (фронт).
	IEEE8023 = Convention{Name: "ieee802.3", Zero: Pair{1, 0}, One: Pair{0, 1}}

	// Thomas (G. E. Thomas): 0 → 01, 1 → 10.
	Thomas = Convention{Name: "thomas", Zero: Pair{0, 1}, One: Pair{1, 0}}
)

// DefaultConvention используется, если в конфигурации ничего не указано.
var DefaultConvention = IEEE8023

// ConventionByName возвращает конвенцию по имени из конфигурации.
func ConventionByName(name string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", IEEE8023.Name, "ieee", "ieee8023":
		return IEEE8023, nil
	case Thomas.Name, "ge-thomas":
		return Thomas, nil
	default:
		return Convention{}, fmt.Errorf("unknown manchester convention %q", name)
	}
}

// pairFor возвращает пару для бита.
func (c Convention) pairFor(bit byte) Pair {
	if bit == '1' {
		return c.One
	}
	return c.Zero
}

// bitFor возвращает бит для пары или 0, если пара недопустима.
func (c Convention) bitFor(p Pair) byte {
	switch p {
	case c.Zero:
		return '0'
	case c.One:
		return '1'
	default:
		return 0
	}
}
