package streamcsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/transform"
)

// Writer emits CSV one field at a time and enforces row integrity when ending rows.
type Writer struct {
	dst     *bufio.Writer
	encoder *transform.Writer
	closer  io.Closer

	sep       rune
	term      string
	locale    language.Tag
	integrity IntegrityMode
	logger    *slog.Logger

	headers       []string
	fieldPos      int
	rowsWritten   int
	maxFieldCount int
	width         int
	bodyStarted   bool

	closed bool
	err    error
}

// NewWriter creates a Writer that encodes its output with the configured
// encoding (UTF-8 unless WithEncoding is given) and buffers it before w.
func NewWriter(w io.Writer, opts ...Option) (*Writer, error) {
	if w == nil {
		return nil, argError("destination", ErrNilDestination)
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	c, _ := w.(io.Closer)
	return newWriter(w, c, cfg), nil
}

// CreateWriter opens the named file for writing, creating it if needed. With
// appendMode the output is appended to existing content, otherwise the file
// is truncated. The file is always closed with the Writer.
func CreateWriter(path string, appendMode bool, opts ...Option) (*Writer, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	cfg.leaveOpen = false
	return newWriter(f, f, cfg), nil
}

// MustNewWriter is like NewWriter but panics on error.
func MustNewWriter(w io.Writer, opts ...Option) *Writer {
	wr, err := NewWriter(w, opts...)
	if err != nil {
		panic(err)
	}
	return wr
}

func newWriter(w io.Writer, closer io.Closer, cfg *config) *Writer {
	enc := transform.NewWriter(w, cfg.encoding.NewEncoder())
	wr := &Writer{
		dst:       bufio.NewWriterSize(enc, cfg.bufferSize),
		encoder:   enc,
		closer:    closer,
		sep:       cfg.separator,
		term:      cfg.terminator,
		locale:    cfg.locale,
		integrity: cfg.integrityMode,
		logger:    cfg.logger,
	}
	if cfg.leaveOpen {
		wr.closer = nil
	}
	return wr
}

// WriteHeader writes one header field. Headers are only accepted before the
// first data field; afterwards ErrHeaderAfterData is returned.
func (w *Writer) WriteHeader(name string) error {
	return w.WriteHeaderContext(context.Background(), name)
}

// WriteHeaderContext is WriteHeader with a context.
func (w *Writer) WriteHeaderContext(ctx context.Context, name string) error {
	return w.writeText(ctx, name, true)
}

// WriteHeaderRow writes every name as a header field and ends the row.
func (w *Writer) WriteHeaderRow(names ...string) error {
	return w.WriteHeaderRowContext(context.Background(), names...)
}

// WriteHeaderRowContext is WriteHeaderRow with a context.
func (w *Writer) WriteHeaderRowContext(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := w.writeText(ctx, name, true); err != nil {
			return err
		}
	}
	return w.WriteRowEndContext(ctx)
}

// WriteString writes s as a data field.
func (w *Writer) WriteString(s string) error {
	return w.WriteStringContext(context.Background(), s)
}

// WriteStringContext is WriteString with a context.
func (w *Writer) WriteStringContext(ctx context.Context, s string) error {
	return w.writeText(ctx, s, false)
}

// WriteInt writes v formatted for the writer's locale.
func (w *Writer) WriteInt(v int64) error {
	return w.WriteIntContext(context.Background(), v)
}

// WriteIntContext is WriteInt with a context.
func (w *Writer) WriteIntContext(ctx context.Context, v int64) error {
	return w.writeText(ctx, FormatInt(v, w.locale), false)
}

// WriteUint writes v formatted for the writer's locale.
func (w *Writer) WriteUint(v uint64) error {
	return w.WriteUintContext(context.Background(), v)
}

// WriteUintContext is WriteUint with a context.
func (w *Writer) WriteUintContext(ctx context.Context, v uint64) error {
	return w.writeText(ctx, FormatUint(v, w.locale), false)
}

// WriteFloat writes v formatted for the writer's locale.
func (w *Writer) WriteFloat(v float64) error {
	return w.WriteFloatContext(context.Background(), v)
}

// WriteFloatContext is WriteFloat with a context.
func (w *Writer) WriteFloatContext(ctx context.Context, v float64) error {
	return w.writeText(ctx, FormatFloat(v, 64, w.locale), false)
}

// WriteBool writes "true" or "false".
func (w *Writer) WriteBool(v bool) error {
	return w.WriteBoolContext(context.Background(), v)
}

// WriteBoolContext is WriteBool with a context.
func (w *Writer) WriteBoolContext(ctx context.Context, v bool) error {
	return w.writeText(ctx, formatBool(v), false)
}

// WriteRune writes a single character field.
func (w *Writer) WriteRune(c rune) error {
	return w.WriteRuneContext(context.Background(), c)
}

// WriteRuneContext is WriteRune with a context.
func (w *Writer) WriteRuneContext(ctx context.Context, c rune) error {
	return w.writeText(ctx, string(c), false)
}

// WriteRunes writes a character buffer as one field.
func (w *Writer) WriteRunes(p []rune) error {
	return w.WriteRunesContext(context.Background(), p)
}

// WriteRunesContext is WriteRunes with a context.
func (w *Writer) WriteRunesContext(ctx context.Context, p []rune) error {
	return w.writeText(ctx, string(p), false)
}

// WriteField writes v as a data field. Strings, rune and byte slices, bools,
// Field values and all integer and float kinds are accepted; runes are
// int32 in Go, so use WriteRune to emit a character.
func (w *Writer) WriteField(v any) error {
	return w.WriteFieldContext(context.Background(), v)
}

// WriteFieldContext is WriteField with a context.
func (w *Writer) WriteFieldContext(ctx context.Context, v any) error {
	text, err := w.format(v)
	if err != nil {
		return err
	}
	return w.writeText(ctx, text, false)
}

// WriteRow writes each value with WriteField and ends the row.
func (w *Writer) WriteRow(values ...any) error {
	return w.WriteRowContext(context.Background(), values...)
}

// WriteRowContext is WriteRow with a context.
func (w *Writer) WriteRowContext(ctx context.Context, values ...any) error {
	for _, v := range values {
		if err := w.WriteFieldContext(ctx, v); err != nil {
			return err
		}
	}
	return w.WriteRowEndContext(ctx)
}

// WriteRowEnd verifies the row against the integrity mode and writes the
// row terminator. The first row sets the width later rows are checked
// against. Under IntegrityStrict a mismatch returns an *IntegrityError and
// leaves the row open.
func (w *Writer) WriteRowEnd() error {
	return w.WriteRowEndContext(context.Background())
}

// WriteRowEndContext is WriteRowEnd with a context.
func (w *Writer) WriteRowEndContext(ctx context.Context) error {
	if err := w.check(ctx); err != nil {
		return err
	}

	if w.rowsWritten == 0 {
		if w.fieldPos == 0 && w.integrity != IntegrityNone {
			return ErrEmptyFirstRow
		}
		w.width = w.fieldPos
	} else if w.fieldPos != w.width {
		switch w.integrity {
		case IntegrityLoose:
			// Short rows are padded; there is no sensible way to shorten wide ones.
			if w.fieldPos < w.width {
				w.logger.Debug("padding short row",
					"row", w.rowsWritten, "fields", w.fieldPos, "width", w.width)
				for ; w.fieldPos < w.width; w.fieldPos++ {
					if w.fieldPos == 0 {
						continue
					}
					if err := w.writeSeparator(); err != nil {
						return err
					}
				}
			}
		case IntegrityStrict:
			err := &IntegrityError{Row: w.rowsWritten, Expected: w.width, Actual: w.fieldPos}
			w.logger.Warn("row integrity violation",
				"row", err.Row, "fields", err.Actual, "width", err.Expected)
			return err
		}
	}

	if _, err := w.dst.WriteString(w.term); err != nil {
		w.err = err
		return err
	}
	if w.fieldPos > w.maxFieldCount {
		w.maxFieldCount = w.fieldPos
	}
	w.rowsWritten++
	w.fieldPos = 0
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.FlushContext(context.Background())
}

// FlushContext is Flush with a context.
func (w *Writer) FlushContext(ctx context.Context) error {
	if err := w.check(ctx); err != nil {
		return err
	}
	if err := w.dst.Flush(); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Close flushes buffered output and closes the destination unless the
// writer was created WithLeaveOpen(true). An open row is not terminated.
// Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	var errs []error
	if w.err == nil {
		if err := w.dst.Flush(); err != nil {
			errs = append(errs, err)
		} else if err := w.encoder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.closed = true
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Error reports the first I/O error encountered by the writer.
func (w *Writer) Error() error { return w.err }

// RowsWritten returns the number of terminated rows, header row included.
func (w *Writer) RowsWritten() int { return w.rowsWritten }

// FieldPosition returns the number of fields written in the open row.
func (w *Writer) FieldPosition() int { return w.fieldPos }

// MaxFieldCount returns the widest terminated row so far.
func (w *Writer) MaxFieldCount() int { return w.maxFieldCount }

// FirstRowWritten reports whether a data field was written or the first row was terminated.
func (w *Writer) FirstRowWritten() bool { return w.bodyStarted || w.rowsWritten > 0 }

// HeaderRowWritten reports whether a header row has been terminated.
func (w *Writer) HeaderRowWritten() bool { return len(w.headers) > 0 && w.rowsWritten > 0 }

// Headers returns a copy of the header names written so far.
func (w *Writer) Headers() []string {
	out := make([]string, len(w.headers))
	copy(out, w.headers)
	return out
}

// Locale returns the locale used to format numbers.
func (w *Writer) Locale() language.Tag { return w.locale }

// SetLocale replaces the number locale. language.Und restores the root locale.
func (w *Writer) SetLocale(tag language.Tag) { w.locale = tag }

// IntegrityMode returns the row integrity policy.
func (w *Writer) IntegrityMode() IntegrityMode { return w.integrity }

// SetIntegrityMode replaces the row integrity policy for rows ended afterwards.
func (w *Writer) SetIntegrityMode(mode IntegrityMode) { w.integrity = mode }

func (w *Writer) check(ctx context.Context) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	return ctx.Err()
}

func (w *Writer) writeText(ctx context.Context, text string, header bool) error {
	if err := w.check(ctx); err != nil {
		return err
	}
	if header && w.FirstRowWritten() {
		return ErrHeaderAfterData
	}
	if w.fieldPos > 0 {
		if err := w.writeSeparator(); err != nil {
			return err
		}
	}
	if err := w.writeField(text); err != nil {
		w.err = err
		return err
	}
	w.fieldPos++
	if header {
		w.headers = append(w.headers, text)
	} else {
		w.bodyStarted = true
	}
	return nil
}

func (w *Writer) writeSeparator() error {
	if _, err := w.dst.WriteRune(w.sep); err != nil {
		w.err = err
		return err
	}
	return nil
}

// writeField emits field, quoting it and doubling inner quotes when needed.
func (w *Writer) writeField(field string) error {
	if !needsQuotes(field, w.sep, w.term) {
		_, err := w.dst.WriteString(field)
		return err
	}
	if err := w.dst.WriteByte(quote); err != nil {
		return err
	}

	start := 0
	for i := 0; i < len(field); i++ {
		if field[i] == quote {
			if _, err := w.dst.WriteString(field[start : i+1]); err != nil {
				return err
			}
			if err := w.dst.WriteByte(quote); err != nil {
				return err
			}
			start = i + 1
		}
	}
	if start < len(field) {
		if _, err := w.dst.WriteString(field[start:]); err != nil {
			return err
		}
	}
	return w.dst.WriteByte(quote)
}

func (w *Writer) format(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []rune:
		return string(x), nil
	case []byte:
		return string(x), nil
	case Field:
		return x.Text, nil
	case bool:
		return formatBool(x), nil
	case int:
		return FormatInt(int64(x), w.locale), nil
	case int8:
		return FormatInt(int64(x), w.locale), nil
	case int16:
		return FormatInt(int64(x), w.locale), nil
	case int32:
		return FormatInt(int64(x), w.locale), nil
	case int64:
		return FormatInt(x, w.locale), nil
	case uint:
		return FormatUint(uint64(x), w.locale), nil
	case uint8:
		return FormatUint(uint64(x), w.locale), nil
	case uint16:
		return FormatUint(uint64(x), w.locale), nil
	case uint32:
		return FormatUint(uint64(x), w.locale), nil
	case uint64:
		return FormatUint(x, w.locale), nil
	case float32:
		return FormatFloat(float64(x), 32, w.locale), nil
	case float64:
		return FormatFloat(x, 64, w.locale), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// EscapeField returns field as it would be written with separator sep and
// the default terminator: wrapped in quotes with inner quotes doubled when it
// contains sep, a quote, a carriage return or a line feed, verbatim otherwise.
func EscapeField(field string, sep rune) string {
	if !needsQuotes(field, sep, DefaultTerminator) {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// UnescapeField reverses EscapeField.
func UnescapeField(field string) string {
	if len(field) < 2 || field[0] != quote || field[len(field)-1] != quote {
		return field
	}
	return strings.ReplaceAll(field[1:len(field)-1], `""`, `"`)
}

// needsQuotes reports whether field contains sep, a quote, CR, LF or a
// character of a custom terminator.
func needsQuotes(field string, sep rune, term string) bool {
	if field == "" {
		return false
	}
	if sep < utf8.RuneSelf && term == DefaultTerminator {
		s := byte(sep)
		for i := 0; i < len(field); i++ {
			switch field[i] {
			case quote, s, '\n', '\r':
				return true
			}
		}
		return false
	}
	for _, c := range field {
		if c == quote || c == sep || c == '\r' || c == '\n' || strings.ContainsRune(term, c) {
			return true
		}
	}
	return false
}
