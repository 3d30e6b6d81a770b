package streamcsv

import (
	"bufio"
	"context"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// Source supplies decoded characters one block at a time.
//
// ReadBlock fills p with up to len(p) characters and returns how many were
// stored. It returns io.EOF once no characters remain; n may be non-zero
// together with an error.
type Source interface {
	ReadBlock(ctx context.Context, p []rune) (n int, err error)
}

type runeSource struct {
	rr io.RuneReader
	// pending reports how many characters can be produced without blocking,
	// when the rune reader exposes it.
	pending func() int
}

// RuneSource adapts an io.RuneReader to a Source. Blocks stop early once
// the reader has no more buffered input, so a slow stream does not hold a
// partially filled block back.
func RuneSource(rr io.RuneReader) Source {
	s := &runeSource{rr: rr}
	switch v := rr.(type) {
	case *bufio.Reader:
		s.pending = v.Buffered
	case interface{ Len() int }:
		s.pending = v.Len
	}
	return s
}

func (s *runeSource) ReadBlock(ctx context.Context, p []rune) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	for n < len(p) {
		c, _, err := s.rr.ReadRune()
		if err != nil {
			return n, err
		}
		p[n] = c
		n++
		if s.pending != nil && s.pending() == 0 {
			break
		}
	}
	return n, nil
}

// decodingSource turns a byte stream in enc into a rune source.
func decodingSource(r io.Reader, enc encoding.Encoding, size int) Source {
	decoded := transform.NewReader(r, enc.NewDecoder())
	return RuneSource(bufio.NewReaderSize(decoded, size*4))
}
