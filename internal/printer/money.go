package printer

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money renders integer minor units with the grouping and decimal mark of a
// locale. Amounts never pass through floating point.
type Money struct {
	printer  *message.Printer
	symbol   string
	decimals int
	decimal  string
}

func NewMoney(locale string, symbol string, decimals int) Money {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	if decimals < 0 {
		decimals = 0
	}
	// Probe the locale's decimal mark with a constant; 1.5 is exact in binary.
	probe := p.Sprintf("%.1f", 1.5)
	mark := "."
	if len(probe) == 3 {
		mark = probe[1:2]
	}
	return Money{printer: p, symbol: symbol, decimals: decimals, decimal: mark}
}

func (m Money) Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	scale := int64(1)
	for range m.decimals {
		scale *= 10
	}
	major := m.printer.Sprintf("%d", cents/scale)
	if m.decimals == 0 {
		return sign + m.symbol + major
	}
	minor := strings.Repeat("0", m.decimals) + itoa(cents%scale)
	return sign + m.symbol + major + m.decimal + minor[len(minor)-m.decimals:]
}

// Rate renders basis points as a percentage: 1900 -> "19%", 1250 -> "12.5%".
func Rate(bp int64) string {
	whole, frac := bp/100, bp%100
	if frac == 0 {
		return itoa(whole) + "%"
	}
	s := itoa(whole) + "." + itoa(frac/10)
	if frac%10 != 0 {
		s += itoa(frac % 10)
	}
	return s + "%"
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
