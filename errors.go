package streamcsv

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation on a Reader or Writer after Close.
	ErrClosed = errors.New("streamcsv: use of closed session")
	// ErrNilSource is returned when a Reader is constructed without a source.
	ErrNilSource = errors.New("streamcsv: source cannot be nil")
	// ErrNilDestination is returned when a Writer is constructed without a destination.
	ErrNilDestination = errors.New("streamcsv: destination cannot be nil")
	// ErrInvalidSeparator is returned when the separator is a quote, CR or LF.
	ErrInvalidSeparator = errors.New("streamcsv: separator cannot be a quote, carriage return or line feed")
	// ErrEmptyTerminator is returned when the row terminator is empty.
	ErrEmptyTerminator = errors.New("streamcsv: row terminator cannot be empty")
	// ErrTerminatorTooLong is returned when the row terminator has more than two characters.
	ErrTerminatorTooLong = errors.New("streamcsv: row terminator cannot exceed two characters")
	// ErrQuoteInTerminator is returned when the row terminator contains a quote.
	ErrQuoteInTerminator = errors.New("streamcsv: row terminator cannot contain a quote")
	// ErrSeparatorInTerminator is returned when the row terminator contains the separator.
	ErrSeparatorInTerminator = errors.New("streamcsv: row terminator cannot contain the separator")
	// ErrInvalidBufferSize is returned when the block buffer size is not positive.
	ErrInvalidBufferSize = errors.New("streamcsv: buffer size must be positive")

	// ErrHeaderAfterData is returned when a header is written once the first data row has started.
	ErrHeaderAfterData = errors.New("streamcsv: headers can only be written before the first data field")
	// ErrEmptyFirstRow is returned when the first row ends without fields under Loose or Strict integrity.
	ErrEmptyFirstRow = errors.New("streamcsv: first row has no fields")
	// ErrIntegrity is matched by every *IntegrityError.
	ErrIntegrity = errors.New("streamcsv: row integrity violation")
	// ErrUnsupportedType is returned when WriteField receives a value it cannot format.
	ErrUnsupportedType = errors.New("streamcsv: unsupported field type")
)

// ArgumentError reports an invalid construction argument.
type ArgumentError struct {
	Arg string
	Err error
}

// Error formats the argument name together with the underlying reason.
func (e *ArgumentError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("streamcsv: invalid argument %q: %v", e.Arg, e.Err)
}

// Unwrap returns the underlying sentinel so ArgumentError participates in errors.Is.
func (e *ArgumentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IntegrityError reports a row whose field count differs from the width
// established by the first row.
type IntegrityError struct {
	Row      int
	Expected int
	Actual   int
}

// Narrower reports whether the offending row had fewer fields than expected.
func (e *IntegrityError) Narrower() bool { return e.Actual < e.Expected }

// Wider reports whether the offending row had more fields than expected.
func (e *IntegrityError) Wider() bool { return e.Actual > e.Expected }

// Error names the row, the direction of the mismatch and both field counts.
func (e *IntegrityError) Error() string {
	if e == nil {
		return ""
	}
	direction := "wider"
	if e.Narrower() {
		direction = "narrower"
	}
	return fmt.Sprintf("streamcsv: row %d is %s than the established width: %d fields, expected %d",
		e.Row, direction, e.Actual, e.Expected)
}

// Is lets errors.Is(err, ErrIntegrity) match any IntegrityError.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

func argError(arg string, err error) error {
	return &ArgumentError{Arg: arg, Err: err}
}

// ParseError reports a field whose text could not be converted to the requested type.
type ParseError struct {
	Row   int
	Field int
	Text  string
	Err   error
}

// Error formats the parse error message with the stored row, field and text values.
func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("streamcsv: parse error on row %d, field %d (%q): %v", e.Row, e.Field, e.Text, e.Err)
}

// Unwrap returns the underlying Err so ParseError participates in errors.Unwrap.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
