package streamcsv

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

func TestReaderReadRows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		opts  []Option
		want  [][]string
	}{
		{
			name:  "basicRows",
			input: "one,two\r\nthree,four\r\n",
			want:  [][]string{{"one", "two"}, {"three", "four"}},
		},
		{
			name:  "finalRowWithoutTerminator",
			input: "alpha,beta,gamma",
			want:  [][]string{{"alpha", "beta", "gamma"}},
		},
		{
			name:  "quotedSeparator",
			input: "a,\"b,b\",c\r\n",
			want:  [][]string{{"a", "b,b", "c"}},
		},
		{
			name:  "escapedQuote",
			input: "a,\"b\"\"c\",d\r\n",
			want:  [][]string{{"a", "b\"c", "d"}},
		},
		{
			name:  "embeddedTerminator",
			input: "a,\"b\r\nc\",d\r\n",
			want:  [][]string{{"a", "b\r\nc", "d"}},
		},
		{
			name:  "emptyFields",
			input: ",,\r\n",
			want:  [][]string{{"", "", ""}},
		},
		{
			name:  "separatorBeforeEOF",
			input: "a,",
			want:  [][]string{{"a", ""}},
		},
		{
			name:  "quotedEmpty",
			input: "\"\",x",
			want:  [][]string{{"", "x"}},
		},
		{
			name:  "customDialect",
			input: "left;right\nup;down\n",
			opts:  []Option{WithSeparator(';'), WithTerminator("\n")},
			want:  [][]string{{"left", "right"}, {"up", "down"}},
		},
		{
			name:  "tabSeparated",
			input: "a\tb\r\n",
			opts:  []Option{WithSeparator('\t')},
			want:  [][]string{{"a", "b"}},
		},
		{
			name:  "loneCarriageReturnIsData",
			input: "a\rb,c\r\n",
			want:  [][]string{{"a\rb", "c"}},
		},
		{
			name:  "blankLinesSkipped",
			input: "a,b\r\n\r\n\r\nc,d\r\n",
			want:  [][]string{{"a", "b"}, {"c", "d"}},
		},
		{
			name:  "unterminatedQuoteAtEOF",
			input: "x,\"quoted",
			want:  [][]string{{"x", "quoted"}},
		},
		{
			name:  "textAfterClosingQuote",
			input: "\"ab\"cd,e",
			want:  [][]string{{"abcd", "e"}},
		},
		{
			name:  "quoteInsideUnquotedField",
			input: "a\"b,c",
			want:  [][]string{{"a\"b", "c"}},
		},
		{
			name:  "multiByteCharacters",
			input: "héllo,wörld\r\n日本,語\r\n",
			want:  [][]string{{"héllo", "wörld"}, {"日本", "語"}},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := NewReader(strings.NewReader(tc.input), tc.opts...)
			require.NoError(t, err)

			assert.Equal(t, tc.want, readRows(t, r))
			assert.True(t, r.EndOfStream())
		})
	}
}

func TestReaderRowCounting(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("field1,field2\r\nfield3,field4"))
	require.NoError(t, err)

	f, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, Field{Text: "field1"}, f)

	f, err = r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, Field{Text: "field2", EndOfRow: true}, f)
	assert.Equal(t, 0, r.RowsRead())
	assert.Equal(t, 2, r.FieldPosition())
	assert.False(t, r.FirstRowRead())

	f, err = r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, "field3", f.Text)
	assert.Equal(t, 1, r.RowsRead())
	assert.Equal(t, 1, r.FieldPosition())
	assert.Equal(t, 2, r.MaxFieldCount())
	assert.True(t, r.FirstRowRead())

	f, err = r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, Field{Text: "field4", EndOfRow: true}, f)
	assert.True(t, r.EndOfStream())

	_, err = r.ReadField()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, r.RowsRead())
	assert.Equal(t, 4, r.FieldsRead())
	assert.Equal(t, 0, r.FieldPosition())

	_, err = r.ReadField()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, r.RowsRead())
}

func TestReaderMaxFieldCount(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("a\r\nb,c,d\r\ne,f\r\n"))
	require.NoError(t, err)

	rows := readRows(t, r)
	assert.Len(t, rows, 3)
	assert.Equal(t, 3, r.MaxFieldCount())
	assert.Equal(t, 3, r.RowsRead())
	assert.Equal(t, 6, r.FieldsRead())
}

func TestReaderBufferBoundaryTerminator(t *testing.T) {
	t.Parallel()

	// With a four character block "abc\r" fills the first block and "\n"
	// starts the second.
	src := RuneSource(strings.NewReader("abc\r\nde"))
	r, err := NewSourceReader(src, WithBufferSize(4))
	require.NoError(t, err)

	f, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, Field{Text: "abc", EndOfRow: true}, f)

	f, err = r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, Field{Text: "de", EndOfRow: true}, f)
	assert.Equal(t, 1, r.RowsRead())
}

func TestReaderSmallBlocks(t *testing.T) {
	t.Parallel()

	const input = "a,\"b\"\"c\",\"d\r\ne\"\r\n\"\"\"\",x\ry\r\nlast"
	want := [][]string{
		{"a", "b\"c", "d\r\ne"},
		{"\"", "x\ry"},
		{"last"},
	}

	for _, size := range []int{1, 2, 3, 5, 1024} {
		for _, chunk := range []int{1, 2, 3} {
			src := &chunkSource{runes: []rune(input), chunk: chunk}
			r, err := NewSourceReader(src, WithBufferSize(size))
			require.NoError(t, err)
			assert.Equal(t, want, readRows(t, r), "buffer %d chunk %d", size, chunk)
		}
	}
}

func TestReaderTwoCharacterCustomTerminator(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("a|b;;c|d;;"), WithSeparator('|'), WithTerminator(";;"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, readRows(t, r))

	r, err = NewReader(strings.NewReader("a;b;;c"), WithSeparator('|'), WithTerminator(";;"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a;b"}, {"c"}}, readRows(t, r))
}

func TestReaderArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		err  error
	}{
		{name: "separatorLF", opts: []Option{WithSeparator('\n')}, err: ErrInvalidSeparator},
		{name: "separatorCR", opts: []Option{WithSeparator('\r')}, err: ErrInvalidSeparator},
		{name: "separatorQuote", opts: []Option{WithSeparator('"')}, err: ErrInvalidSeparator},
		{name: "emptyTerminator", opts: []Option{WithTerminator("")}, err: ErrEmptyTerminator},
		{name: "longTerminator", opts: []Option{WithTerminator("\r\n\n")}, err: ErrTerminatorTooLong},
		{name: "quoteTerminator", opts: []Option{WithTerminator("\"\n")}, err: ErrQuoteInTerminator},
		{name: "separatorTerminator", opts: []Option{WithSeparator(';'), WithTerminator(";")}, err: ErrSeparatorInTerminator},
		{name: "bufferSize", opts: []Option{WithBufferSize(0)}, err: ErrInvalidBufferSize},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewReader(strings.NewReader("a"), tc.opts...)
			require.ErrorIs(t, err, tc.err)

			var argErr *ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.NotEmpty(t, argErr.Arg)

			_, err = NewSourceReader(RuneSource(strings.NewReader("a")), tc.opts...)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := NewReader(nil)
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = NewSourceReader(nil)
	assert.ErrorIs(t, err, ErrNilSource)

	assert.Panics(t, func() { MustNewReader(nil) })
}

func TestOpenReader(t *testing.T) {
	t.Parallel()

	_, err := OpenReader(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	r, err := OpenReader(filepath.Join("testdata", "products.csv"))
	require.NoError(t, err)
	defer r.Close()

	header, err := r.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "price", "in_stock"}, header)

	rows := readRows(t, r)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2", "Widget, large", "19.5", "false"}, rows[1])
	assert.Equal(t, []string{"3", "The \"best\" gadget", "7", "true"}, rows[2])
}

func TestReaderClose(t *testing.T) {
	t.Parallel()

	src := &closeTracker{Reader: strings.NewReader("a,b")}
	r, err := NewReader(src)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, src.closed)
	assert.NoError(t, r.Close())

	_, err = r.ReadField()
	assert.ErrorIs(t, err, ErrClosed)

	kept := &closeTracker{Reader: strings.NewReader("a,b")}
	r, err = NewReader(kept, WithLeaveOpen(true))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.False(t, kept.closed)
}

func TestReaderEncoding(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("caf\xe9,na\xefve\r\n"), WithEncoding(charmap.Windows1252))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"café", "naïve"}}, readRows(t, r))
}

func TestReaderContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := &chunkSource{runes: []rune("abcd,e"), chunk: 2, after: cancel}
	r, err := NewSourceReader(src, WithBufferSize(8))
	require.NoError(t, err)

	_, err = r.ReadFieldContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.FieldsRead())

	f, err := r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, "abcd", f.Text)

	f, err = r.ReadField()
	require.NoError(t, err)
	assert.Equal(t, Field{Text: "e", EndOfRow: true}, f)
}

func TestReaderSourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	src := &chunkSource{runes: []rune("ab\r"), chunk: 3, err: boom}
	r, err := NewSourceReader(src)
	require.NoError(t, err)

	_, err = r.ReadField()
	require.ErrorIs(t, err, boom)
}

func TestReaderTypedReads(t *testing.T) {
	t.Parallel()

	r, err := NewReader(strings.NewReader("1,5;-42;true;nope\n"),
		WithSeparator(';'), WithTerminator("\n"), WithLocale(language.German))
	require.NoError(t, err)

	fv, _, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, fv, 1e-9)

	iv, _, err := r.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), iv)

	bv, _, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, bv)

	_, f, err := r.ReadInt64()
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nope", perr.Text)
	assert.Equal(t, 3, perr.Field)
	assert.True(t, f.EndOfRow)

	r.SetLocale(language.Und)
	assert.Equal(t, language.Und, r.Locale())
}

func TestReaderTypedReadsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, err := NewReader(strings.NewReader("7,2.5,false\r\n"))
	require.NoError(t, err)

	_, _, err = r.ReadInt64Context(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = r.ReadFloat64Context(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = r.ReadBoolContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.FieldsRead())

	iv, _, err := r.ReadInt64Context(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), iv)
	fv, _, err := r.ReadFloat64Context(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.5, fv, 1e-9)
	bv, f, err := r.ReadBoolContext(context.Background())
	require.NoError(t, err)
	assert.False(t, bv)
	assert.True(t, f.EndOfRow)
}

func TestParseErrorMethods(t *testing.T) {
	t.Parallel()

	err := &ParseError{Row: 3, Field: 7, Text: "x", Err: ErrUnsupportedType}
	assert.Contains(t, err.Error(), "row 3")
	assert.Contains(t, err.Error(), "field 7")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	var nilErr *ParseError
	assert.Empty(t, nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())
}

func readRows(t *testing.T, r *Reader) [][]string {
	t.Helper()

	var rows [][]string
	for {
		row, err := r.ReadRow()
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

// chunkSource hands out at most chunk characters per block, then err (io.EOF by default).
type chunkSource struct {
	runes []rune
	chunk int
	err   error
	after func()
}

func (s *chunkSource) ReadBlock(ctx context.Context, p []rune) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(s.runes) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	n := min(s.chunk, len(p), len(s.runes))
	copy(p, s.runes[:n])
	s.runes = s.runes[n:]
	if s.after != nil {
		s.after()
		s.after = nil
	}
	return n, nil
}

type closeTracker struct {
	*strings.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}
