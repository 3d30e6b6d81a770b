package streamcsv

import (
	"io"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/language"
)

const (
	// DefaultSeparator is the field separator used when none is configured.
	DefaultSeparator = ','
	// DefaultTerminator is the row terminator used when none is configured.
	DefaultTerminator = "\r\n"

	quote             = '"'
	defaultBufferSize = 1 << 10 // 1024 characters
)

// Option configures a Reader or Writer at construction.
type Option func(*config)

type config struct {
	separator     rune
	terminator    string
	locale        language.Tag
	encoding      encoding.Encoding
	leaveOpen     bool
	bufferSize    int
	integrityMode IntegrityMode
	logger        *slog.Logger
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		separator:  DefaultSeparator,
		terminator: DefaultTerminator,
		locale:     language.Und,
		encoding:   unicode.UTF8,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.encoding == nil {
		cfg.encoding = unicode.UTF8
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	if err := validateSeparator(c.separator); err != nil {
		return err
	}
	if err := validateTerminator(c.terminator, c.separator); err != nil {
		return err
	}
	if c.bufferSize <= 0 {
		return argError("bufferSize", ErrInvalidBufferSize)
	}
	return nil
}

func validateSeparator(sep rune) error {
	switch sep {
	case quote, '\r', '\n':
		return argError("separator", ErrInvalidSeparator)
	}
	if sep == utf8.RuneError || !utf8.ValidRune(sep) {
		return argError("separator", ErrInvalidSeparator)
	}
	return nil
}

func validateTerminator(term string, sep rune) error {
	switch n := utf8.RuneCountInString(term); {
	case n == 0:
		return argError("terminator", ErrEmptyTerminator)
	case n > 2:
		return argError("terminator", ErrTerminatorTooLong)
	}
	for _, r := range term {
		if r == quote {
			return argError("terminator", ErrQuoteInTerminator)
		}
		if r == sep {
			return argError("terminator", ErrSeparatorInTerminator)
		}
	}
	return nil
}

// WithSeparator sets the field separator. Default is ','.
func WithSeparator(sep rune) Option {
	return func(c *config) { c.separator = sep }
}

// WithTerminator sets the one or two character row terminator. Default is "\r\n".
func WithTerminator(term string) Option {
	return func(c *config) { c.terminator = term }
}

// WithLocale sets the locale used to format and parse numbers.
// language.Und selects the root locale.
func WithLocale(tag language.Tag) Option {
	return func(c *config) { c.locale = tag }
}

// WithEncoding sets the text encoding of byte-stream sources and destinations. Default is UTF-8.
func WithEncoding(enc encoding.Encoding) Option {
	return func(c *config) { c.encoding = enc }
}

// WithLeaveOpen keeps the underlying stream open when the session is closed.
func WithLeaveOpen(leaveOpen bool) Option {
	return func(c *config) { c.leaveOpen = leaveOpen }
}

// WithBufferSize sets the character capacity of the read block or write buffer.
func WithBufferSize(n int) Option {
	return func(c *config) { c.bufferSize = n }
}

// WithIntegrityMode sets the row integrity policy of a Writer. Readers ignore it.
func WithIntegrityMode(mode IntegrityMode) Option {
	return func(c *config) { c.integrityMode = mode }
}

// WithLogger routes diagnostic records to logger. Sessions log nothing by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}
