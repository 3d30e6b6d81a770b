package streamcsv

import (
	"fmt"
	"strings"
)

// Field is one value produced by Reader.ReadField.
type Field struct {
	// Text is the unescaped field content.
	Text string
	// EndOfRow reports that a row terminator or the end of the stream followed the field.
	EndOfRow bool
}

// String returns the field text.
func (f Field) String() string { return f.Text }

// IntegrityMode selects how a Writer treats rows whose width differs from the first row.
type IntegrityMode int

const (
	// IntegrityNone writes every row as given.
	IntegrityNone IntegrityMode = iota
	// IntegrityLoose pads narrower rows with empty fields and rejects an empty first row.
	IntegrityLoose
	// IntegrityStrict rejects any width mismatch with an *IntegrityError.
	IntegrityStrict
)

var integrityModeNames = [...]string{"none", "loose", "strict"}

func (m IntegrityMode) String() string {
	if m < 0 || int(m) >= len(integrityModeNames) {
		return fmt.Sprintf("IntegrityMode(%d)", int(m))
	}
	return integrityModeNames[m]
}

// ParseIntegrityMode maps "none", "loose" or "strict" (any case) to a mode.
func ParseIntegrityMode(s string) (IntegrityMode, error) {
	for i, name := range integrityModeNames {
		if strings.EqualFold(s, name) {
			return IntegrityMode(i), nil
		}
	}
	return IntegrityNone, fmt.Errorf("streamcsv: unknown integrity mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m IntegrityMode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(integrityModeNames) {
		return nil, fmt.Errorf("streamcsv: unknown integrity mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *IntegrityMode) UnmarshalText(text []byte) error {
	mode, err := ParseIntegrityMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
