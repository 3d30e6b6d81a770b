package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oleg578/streamcsv"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	In        Dialect
	MaxRagged int
}

// RaggedRow is a row whose width differs from the first row.
type RaggedRow struct {
	Row    int `json:"row"`
	Fields int `json:"fields"`
}

// StatsResult describes the shape of a CSV document.
type StatsResult struct {
	Rows          int         `json:"rows"`
	Fields        int         `json:"fields"`
	Width         int         `json:"width"`
	MaxFieldCount int         `json:"max_field_count"`
	RaggedTotal   int         `json:"ragged_total"`
	Ragged        []RaggedRow `json:"ragged,omitempty"`
}

func (s StatsResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rows:            %d\n", s.Rows)
	fmt.Fprintf(&b, "fields:          %d\n", s.Fields)
	fmt.Fprintf(&b, "width:           %d\n", s.Width)
	fmt.Fprintf(&b, "max field count: %d\n", s.MaxFieldCount)
	fmt.Fprintf(&b, "ragged rows:     %d", s.RaggedTotal)
	for _, r := range s.Ragged {
		fmt.Fprintf(&b, "\n  row %d: %d fields", r.Row, r.Fields)
	}
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats <in>",
		Short: "Count rows and fields and report ragged rows",
		Long: `Read every field of <in> and report row and field counts, the width of
the first row and the rows whose width differs from it.

Use "-" for stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, args[0], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.In.Separator, "sep", "", "field separator (default ,)")
	f.StringVar(&opts.In.Terminator, "term", "", `row terminator (default \r\n)`)
	f.StringVar(&opts.In.Encoding, "encoding", "", "input encoding (default utf-8)")
	f.IntVar(&opts.MaxRagged, "max-ragged", 10, "number of ragged rows to list")

	return cmd
}

func runStats(opts *StatsOptions, inPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	file, err := LoadDialectFile(opts.DialectFile)
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "invalid dialect", err))
	}
	in := file.Input
	flags := cmd.Flags()
	if flags.Changed("sep") {
		in.Separator = opts.In.Separator
	}
	if flags.Changed("term") {
		in.Terminator = opts.In.Terminator
	}
	if flags.Changed("encoding") {
		in.Encoding = opts.In.Encoding
	}
	inOpts, err := in.Options()
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "invalid input dialect", err))
	}

	r, err := openInput(cmd, inPath, append(inOpts, streamcsv.WithLogger(logger)))
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "failed to open input", err))
	}
	defer r.Close()

	res, err := collectStats(cmd.Context(), r, opts.MaxRagged)
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "failed to read input", err))
	}
	logger.Debug("stats collected", "in", inPath, "rows", res.Rows)
	return formatter.Success(res)
}

func collectStats(ctx context.Context, r *streamcsv.Reader, maxRagged int) (StatsResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var res StatsResult
	row := 0
	for {
		f, err := r.ReadFieldContext(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		if !f.EndOfRow {
			continue
		}
		// The row is not counted until the next read, so its width is still the field position.
		width := r.FieldPosition()
		if row == 0 {
			res.Width = width
		} else if width != res.Width {
			res.RaggedTotal++
			if len(res.Ragged) < maxRagged {
				res.Ragged = append(res.Ragged, RaggedRow{Row: row, Fields: width})
			}
		}
		row++
	}
	res.Rows = r.RowsRead()
	res.Fields = r.FieldsRead()
	res.MaxFieldCount = r.MaxFieldCount()
	return res, nil
}
