package streamcsv

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Reader parses CSV one field at a time from a character stream.
type Reader struct {
	src    Source
	closer io.Closer

	sep    rune
	term   []rune
	locale language.Tag
	logger *slog.Logger

	buf    []rune
	bufPos int
	bufLen int
	bufErr error

	pushback    rune
	hasPushback bool

	// Scan state of the field in progress, kept across calls so a failed
	// block read can be retried without losing characters.
	text    strings.Builder
	escaped bool
	started bool

	fieldsRead     int
	fieldPos       int
	rowsRead       int
	maxFieldCount  int
	rowPending     bool
	afterSeparator bool
	eof            bool
	closed         bool
}

// NewReader creates a Reader that decodes r with the configured encoding
// (UTF-8 unless WithEncoding is given). It returns an *ArgumentError when r
// is nil or the separator or terminator is invalid.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	if r == nil {
		return nil, argError("source", ErrNilSource)
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	c, _ := r.(io.Closer)
	return newReader(decodingSource(r, cfg.encoding, cfg.bufferSize), c, cfg), nil
}

// NewSourceReader creates a Reader over an already decoded character source.
// If src implements io.Closer it is closed with the Reader.
func NewSourceReader(src Source, opts ...Option) (*Reader, error) {
	if src == nil {
		return nil, argError("source", ErrNilSource)
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	c, _ := src.(io.Closer)
	return newReader(src, c, cfg), nil
}

// OpenReader opens the named file and returns a Reader over its contents.
// The file is always closed with the Reader.
func OpenReader(path string, opts ...Option) (*Reader, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cfg.leaveOpen = false
	return newReader(decodingSource(f, cfg.encoding, cfg.bufferSize), f, cfg), nil
}

// MustNewReader is like NewReader but panics on error.
func MustNewReader(r io.Reader, opts ...Option) *Reader {
	rd, err := NewReader(r, opts...)
	if err != nil {
		panic(err)
	}
	return rd
}

func newReader(src Source, closer io.Closer, cfg *config) *Reader {
	rd := &Reader{
		src:    src,
		closer: closer,
		sep:    cfg.separator,
		term:   []rune(cfg.terminator),
		locale: cfg.locale,
		logger: cfg.logger,
		buf:    make([]rune, cfg.bufferSize),
	}
	if cfg.leaveOpen {
		rd.closer = nil
	}
	return rd
}

// ReadField returns the next field. It returns io.EOF once the stream holds
// no further fields.
func (r *Reader) ReadField() (Field, error) {
	return r.ReadFieldContext(context.Background())
}

// ReadFieldContext is ReadField with a context that is checked before every
// block read from the underlying source. When a read fails the partial field
// is kept and the next call resumes it.
func (r *Reader) ReadFieldContext(ctx context.Context) (Field, error) {
	if r.closed {
		return Field{}, ErrClosed
	}
	if r.rowPending {
		r.completeRow()
	}
	if r.eof {
		return Field{}, io.EOF
	}

	atRowStart := r.fieldPos == 0 && !r.afterSeparator
	for {
		c, err := r.readRune(ctx)
		if err == io.EOF {
			r.eof = true
			if !r.started && !r.afterSeparator {
				return Field{}, io.EOF
			}
			if r.escaped {
				r.logger.Debug("unterminated quoted field at end of stream",
					"row", r.rowsRead, "field", r.fieldPos)
			}
			return r.finishField(true), nil
		}
		if err != nil {
			return Field{}, err
		}

		if r.escaped {
			if c != quote {
				r.text.WriteRune(c)
				continue
			}
			// A doubled quote is a literal quote; anything else closes the quoted section.
			next, err := r.readRune(ctx)
			switch {
			case err == nil && next == quote:
				r.text.WriteRune(quote)
			case err == nil:
				r.unread(next)
				r.escaped = false
			case err == io.EOF:
				r.escaped = false
			default:
				r.unread(c)
				return Field{}, err
			}
			continue
		}

		switch {
		case c == quote && !r.started:
			r.escaped = true
			r.started = true
		case c == r.sep:
			r.afterSeparator = true
			return r.finishField(false), nil
		case c == r.term[0]:
			ok, err := r.matchTerminator(ctx)
			if err != nil {
				r.unread(c)
				return Field{}, err
			}
			if !ok {
				r.text.WriteRune(c)
				r.started = true
				continue
			}
			if atRowStart && !r.started {
				// Blank line: no field, no row.
				continue
			}
			r.afterSeparator = false
			return r.finishField(true), nil
		default:
			r.text.WriteRune(c)
			r.started = true
		}
	}
}

// ReadRow reads the fields up to the next row terminator. It returns io.EOF
// when no fields remain. On error the fields read so far are returned with it.
func (r *Reader) ReadRow() ([]string, error) {
	return r.ReadRowContext(context.Background())
}

// ReadRowContext is ReadRow with a context passed to every field read.
func (r *Reader) ReadRowContext(ctx context.Context) ([]string, error) {
	var row []string
	for {
		f, err := r.ReadFieldContext(ctx)
		if err == io.EOF && len(row) > 0 {
			return row, nil
		}
		if err != nil {
			return row, err
		}
		row = append(row, f.Text)
		if f.EndOfRow {
			return row, nil
		}
	}
}

// ReadInt64 reads the next field and parses it as a base-10 integer for the reader's locale.
func (r *Reader) ReadInt64() (int64, Field, error) {
	return r.ReadInt64Context(context.Background())
}

// ReadInt64Context is ReadInt64 with a context.
func (r *Reader) ReadInt64Context(ctx context.Context) (int64, Field, error) {
	f, err := r.ReadFieldContext(ctx)
	if err != nil {
		return 0, f, err
	}
	v, err := ParseInt(f.Text, r.locale)
	if err != nil {
		return 0, f, r.parseError(f, err)
	}
	return v, f, nil
}

// ReadFloat64 reads the next field and parses it as a decimal number for the reader's locale.
func (r *Reader) ReadFloat64() (float64, Field, error) {
	return r.ReadFloat64Context(context.Background())
}

// ReadFloat64Context is ReadFloat64 with a context.
func (r *Reader) ReadFloat64Context(ctx context.Context) (float64, Field, error) {
	f, err := r.ReadFieldContext(ctx)
	if err != nil {
		return 0, f, err
	}
	v, err := ParseFloat(f.Text, r.locale)
	if err != nil {
		return 0, f, r.parseError(f, err)
	}
	return v, f, nil
}

// ReadBool reads the next field and parses it with strconv.ParseBool.
func (r *Reader) ReadBool() (bool, Field, error) {
	return r.ReadBoolContext(context.Background())
}

// ReadBoolContext is ReadBool with a context.
func (r *Reader) ReadBoolContext(ctx context.Context) (bool, Field, error) {
	f, err := r.ReadFieldContext(ctx)
	if err != nil {
		return false, f, err
	}
	v, err := strconv.ParseBool(strings.TrimSpace(f.Text))
	if err != nil {
		return false, f, r.parseError(f, err)
	}
	return v, f, nil
}

// Close releases the reader. The underlying stream is closed unless the
// reader was created WithLeaveOpen(true). Close is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.buf = nil
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// RowsRead returns the number of completed rows. A row ended by the last
// returned field is counted by the following ReadField call.
func (r *Reader) RowsRead() int { return r.rowsRead }

// FieldsRead returns the total number of fields returned.
func (r *Reader) FieldsRead() int { return r.fieldsRead }

// FieldPosition returns the number of fields read in the current row.
func (r *Reader) FieldPosition() int { return r.fieldPos }

// MaxFieldCount returns the widest completed row seen so far.
func (r *Reader) MaxFieldCount() int { return r.maxFieldCount }

// EndOfStream reports whether the underlying source has been exhausted.
func (r *Reader) EndOfStream() bool { return r.eof }

// FirstRowRead reports whether at least one row has been completed.
func (r *Reader) FirstRowRead() bool { return r.rowsRead > 0 }

// Locale returns the locale used by the typed read methods.
func (r *Reader) Locale() language.Tag { return r.locale }

// SetLocale replaces the locale. language.Und restores the root locale.
func (r *Reader) SetLocale(tag language.Tag) { r.locale = tag }

func (r *Reader) finishField(endOfRow bool) Field {
	f := Field{Text: r.text.String(), EndOfRow: endOfRow}
	r.text.Reset()
	r.escaped = false
	r.started = false
	if endOfRow {
		r.afterSeparator = false
		r.rowPending = true
	}
	r.fieldPos++
	r.fieldsRead++
	return f
}

func (r *Reader) completeRow() {
	r.rowsRead++
	if r.fieldPos > r.maxFieldCount {
		r.maxFieldCount = r.fieldPos
	}
	r.fieldPos = 0
	r.rowPending = false
}

// matchTerminator is called after the first terminator character was read
// and reports whether the rest of the terminator follows. A non-matching
// lookahead character is pushed back.
func (r *Reader) matchTerminator(ctx context.Context) (bool, error) {
	if len(r.term) == 1 {
		return true, nil
	}
	next, err := r.readRune(ctx)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if next == r.term[1] {
		return true, nil
	}
	r.unread(next)
	return false, nil
}

// readRune returns the pushed back character if any, otherwise the next
// buffered character, refilling the block from the source as needed.
func (r *Reader) readRune(ctx context.Context) (rune, error) {
	if r.hasPushback {
		r.hasPushback = false
		return r.pushback, nil
	}
	for r.bufPos >= r.bufLen {
		if r.bufErr != nil {
			err := r.bufErr
			if err != io.EOF {
				r.bufErr = nil
			}
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := r.src.ReadBlock(ctx, r.buf)
		r.bufPos = 0
		r.bufLen = n
		r.bufErr = err
	}
	c := r.buf[r.bufPos]
	r.bufPos++
	return c, nil
}

func (r *Reader) unread(c rune) {
	r.pushback = c
	r.hasPushback = true
}

func (r *Reader) parseError(f Field, err error) error {
	return &ParseError{Row: r.rowsRead, Field: r.fieldPos - 1, Text: f.Text, Err: err}
}
