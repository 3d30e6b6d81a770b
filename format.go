package streamcsv

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// numberSymbols caches a printer and the separators it produces for one locale.
type numberSymbols struct {
	printer *message.Printer
	decimal rune
	group   rune
}

var symbolCache sync.Map // tag string -> *numberSymbols

func symbolsFor(tag language.Tag) *numberSymbols {
	key := tag.String()
	if v, ok := symbolCache.Load(key); ok {
		return v.(*numberSymbols)
	}

	p := message.NewPrinter(tag)
	s := &numberSymbols{printer: p, decimal: '.', group: ','}
	// Read the separators back from rendered samples rather than CLDR tables.
	if sample := []rune(s.sprint(number.Decimal(1.5))); len(sample) == 3 {
		s.decimal = sample[1]
	}
	if sample := []rune(s.sprint(number.Decimal(1000))); len(sample) == 5 {
		s.group = sample[1]
	}

	v, _ := symbolCache.LoadOrStore(key, s)
	return v.(*numberSymbols)
}

// sprint renders n without bidi and other format marks, which some locales
// put around signs.
func (s *numberSymbols) sprint(n any) string {
	out := s.printer.Sprintf("%v", n)
	if strings.IndexFunc(out, isFormatMark) < 0 {
		return out
	}
	return strings.Map(func(c rune) rune {
		if isFormatMark(c) {
			return -1
		}
		return c
	}, out)
}

func isFormatMark(c rune) bool { return unicode.Is(unicode.Cf, c) }

// FormatInt renders v in base 10 for tag, without digit grouping.
func FormatInt(v int64, tag language.Tag) string {
	if tag == language.Und {
		return strconv.FormatInt(v, 10)
	}
	return symbolsFor(tag).sprint(number.Decimal(v, number.NoSeparator()))
}

// FormatUint renders v in base 10 for tag, without digit grouping.
func FormatUint(v uint64, tag language.Tag) string {
	if tag == language.Und {
		return strconv.FormatUint(v, 10)
	}
	return symbolsFor(tag).sprint(number.Decimal(v, number.NoSeparator()))
}

// FormatFloat renders v with the fewest fraction digits that round-trip at
// bitSize precision, using the decimal separator of tag and no grouping.
// NaN and infinities use strconv spelling.
func FormatFloat(v float64, bitSize int, tag language.Tag) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, bitSize)
	}
	plain := strconv.FormatFloat(v, 'f', -1, bitSize)
	if tag == language.Und {
		return plain
	}
	digits := 0
	if i := strings.IndexByte(plain, '.'); i >= 0 {
		digits = len(plain) - i - 1
	}
	return symbolsFor(tag).sprint(number.Decimal(v,
		number.NoSeparator(),
		number.MinFractionDigits(digits),
		number.MaxFractionDigits(digits)))
}

// ParseInt parses a base-10 integer written for tag. Group separators are ignored.
func ParseInt(s string, tag language.Tag) (int64, error) {
	return strconv.ParseInt(normalizeNumber(s, tag), 10, 64)
}

// ParseFloat parses a decimal number written for tag. Group separators are ignored.
func ParseFloat(s string, tag language.Tag) (float64, error) {
	return strconv.ParseFloat(normalizeNumber(s, tag), 64)
}

// normalizeNumber rewrites a localized number into strconv syntax. Decimal
// digits of any script are folded to ASCII and format marks are dropped.
func normalizeNumber(s string, tag language.Tag) string {
	s = strings.TrimSpace(s)
	if tag == language.Und {
		return s
	}
	sym := symbolsFor(tag)
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch c {
		case sym.decimal:
			b.WriteByte('.')
		case sym.group, '\u00a0', '\u202f':
		case '\u2212':
			b.WriteByte('-')
		default:
			switch {
			case c > '9' && unicode.IsDigit(c):
				b.WriteByte(byte('0' + digitValue(c)))
			case isFormatMark(c):
			default:
				b.WriteRune(c)
			}
		}
	}
	return b.String()
}

// digitValue returns the value of the decimal digit c. Unicode allocates the
// digits of each script as a run of ten starting at zero, and adjacent runs
// (the mathematical digits) are themselves aligned to the first one.
func digitValue(c rune) int {
	start := c
	for unicode.IsDigit(start - 1) {
		start--
	}
	return int(c-start) % 10
}
