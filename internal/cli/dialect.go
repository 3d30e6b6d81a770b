package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/oleg578/streamcsv"
)

// Dialect describes one side of a conversion. Empty fields keep the codec defaults.
type Dialect struct {
	Separator  string                  `yaml:"separator"`
	Terminator string                  `yaml:"terminator"`
	Encoding   string                  `yaml:"encoding"`
	Locale     string                  `yaml:"locale"`
	Integrity  streamcsv.IntegrityMode `yaml:"integrity"`
}

// DialectFile is the YAML document accepted by --dialect.
type DialectFile struct {
	Input  Dialect `yaml:"input"`
	Output Dialect `yaml:"output"`
}

// LoadDialectFile reads and decodes a dialect file. An empty path yields an empty file.
func LoadDialectFile(path string) (*DialectFile, error) {
	df := &DialectFile{}
	if path == "" {
		return df, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, df); err != nil {
		return nil, fmt.Errorf("parse dialect file %s: %w", path, err)
	}
	return df, nil
}

// Options converts the dialect into codec options.
func (d Dialect) Options() ([]streamcsv.Option, error) {
	var opts []streamcsv.Option

	if d.Separator != "" {
		sep := unescapeFlag(d.Separator)
		if utf8.RuneCountInString(sep) != 1 {
			return nil, fmt.Errorf("separator %q must be a single character", d.Separator)
		}
		r, _ := utf8.DecodeRuneInString(sep)
		opts = append(opts, streamcsv.WithSeparator(r))
	}
	if d.Terminator != "" {
		opts = append(opts, streamcsv.WithTerminator(unescapeFlag(d.Terminator)))
	}
	if d.Encoding != "" {
		enc, err := htmlindex.Get(d.Encoding)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", d.Encoding, err)
		}
		opts = append(opts, streamcsv.WithEncoding(enc))
	}

	tag := AmbientLocale()
	if d.Locale != "" {
		parsed, err := language.Parse(d.Locale)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", d.Locale, err)
		}
		tag = parsed
	}
	opts = append(opts, streamcsv.WithLocale(tag))
	opts = append(opts, streamcsv.WithIntegrityMode(d.Integrity))

	return opts, nil
}

// AmbientLocale derives the number locale from LC_ALL, LC_NUMERIC or LANG.
// "C", "POSIX" and unparsable values select the root locale.
func AmbientLocale() language.Tag {
	for _, key := range []string{"LC_ALL", "LC_NUMERIC", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return parsePOSIXLocale(v)
		}
	}
	return language.Und
}

func parsePOSIXLocale(v string) language.Tag {
	// de_DE.UTF-8@euro -> de-DE
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "C" || v == "POSIX" {
		return language.Und
	}
	tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
	if err != nil {
		return language.Und
	}
	return tag
}

// unescapeFlag interprets Go escapes such as \t or \r\n typed on a command line.
func unescapeFlag(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}
