package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oleg578/streamcsv"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	In        Dialect
	Out       Dialect
	Integrity string
	Header    bool
	Append    bool
}

// ConvertResult summarizes a conversion.
type ConvertResult struct {
	Rows          int      `json:"rows"`
	Fields        int      `json:"fields"`
	MaxFieldCount int      `json:"max_field_count"`
	Headers       []string `json:"headers,omitempty"`
}

func (r ConvertResult) String() string {
	return fmt.Sprintf("converted %d rows (%d fields, at most %d per row)", r.Rows, r.Fields, r.MaxFieldCount)
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Rewrite a CSV document in another dialect",
		Long: `Stream every field of <in> into <out>, re-escaping for the output dialect.

Use "-" for stdin or stdout. Flags override values from --dialect.

Example:
  streamcsv convert --in-sep ';' --in-term '\n' --in-encoding windows-1252 export.csv clean.csv
  streamcsv convert --integrity strict --header data.csv -`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], args[1], cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.In.Separator, "in-sep", "", "input field separator (default ,)")
	f.StringVar(&opts.In.Terminator, "in-term", "", `input row terminator (default \r\n)`)
	f.StringVar(&opts.In.Encoding, "in-encoding", "", "input encoding (default utf-8)")
	f.StringVar(&opts.Out.Separator, "out-sep", "", "output field separator (default ,)")
	f.StringVar(&opts.Out.Terminator, "out-term", "", `output row terminator (default \r\n)`)
	f.StringVar(&opts.Out.Encoding, "out-encoding", "", "output encoding (default utf-8)")
	f.StringVar(&opts.Out.Locale, "locale", "", "number locale (default from LC_ALL/LANG)")
	f.StringVar(&opts.Integrity, "integrity", "", "row integrity: none|loose|strict")
	f.BoolVar(&opts.Header, "header", false, "treat the first input row as headers")
	f.BoolVar(&opts.Append, "append", false, "append to <out> instead of truncating it")

	return cmd
}

func runConvert(opts *ConvertOptions, inPath, outPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if outPath == "-" {
		// CSV goes to stdout; keep the summary off it.
		formatter.Writer = cmd.ErrOrStderr()
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	in, out, err := resolveConvertDialects(cmd, opts)
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "invalid dialect", err))
	}
	inOpts, err := in.Options()
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "invalid input dialect", err))
	}
	outOpts, err := out.Options()
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "invalid output dialect", err))
	}
	inOpts = append(inOpts, streamcsv.WithLogger(logger))
	outOpts = append(outOpts, streamcsv.WithLogger(logger))

	r, err := openInput(cmd, inPath, inOpts)
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "failed to open input", err))
	}
	defer r.Close()

	w, err := openOutput(cmd, outPath, opts.Append, outOpts)
	if err != nil {
		return formatter.Failure(WrapExitError(ExitCommandError, "failed to open output", err))
	}

	logger.Debug("converting", "in", inPath, "out", outPath, "integrity", out.Integrity)
	res, err := convert(cmd.Context(), r, w, opts.Header)
	if closeErr := w.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		code := ExitCommandError
		if errors.Is(err, streamcsv.ErrIntegrity) || errors.Is(err, streamcsv.ErrEmptyFirstRow) {
			code = ExitFailure
		}
		return formatter.Failure(WrapExitError(code, fmt.Sprintf("conversion stopped after %d rows", res.Rows), err))
	}

	logger.Info("conversion finished", "rows", res.Rows, "fields", res.Fields)
	return formatter.Success(res)
}

// convert copies fields from r to w, ending output rows where input rows end.
func convert(ctx context.Context, r *streamcsv.Reader, w *streamcsv.Writer, header bool) (ConvertResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var res ConvertResult
	for {
		f, err := r.ReadFieldContext(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		if header {
			err = w.WriteHeaderContext(ctx, f.Text)
		} else {
			err = w.WriteFieldContext(ctx, f.Text)
		}
		if err != nil {
			return res, err
		}
		res.Fields++
		if f.EndOfRow {
			header = false
			if err := w.WriteRowEndContext(ctx); err != nil {
				return res, err
			}
			res.Rows = w.RowsWritten()
		}
	}
	res.Rows = w.RowsWritten()
	res.MaxFieldCount = w.MaxFieldCount()
	if w.HeaderRowWritten() {
		res.Headers = w.Headers()
	}
	return res, nil
}

func resolveConvertDialects(cmd *cobra.Command, opts *ConvertOptions) (Dialect, Dialect, error) {
	file, err := LoadDialectFile(opts.DialectFile)
	if err != nil {
		return Dialect{}, Dialect{}, err
	}
	flags := cmd.Flags()
	pick := func(name, flagValue, fileValue string) string {
		if flags.Changed(name) {
			return flagValue
		}
		return fileValue
	}

	in := Dialect{
		Separator:  pick("in-sep", opts.In.Separator, file.Input.Separator),
		Terminator: pick("in-term", opts.In.Terminator, file.Input.Terminator),
		Encoding:   pick("in-encoding", opts.In.Encoding, file.Input.Encoding),
		Locale:     file.Input.Locale,
	}
	out := Dialect{
		Separator:  pick("out-sep", opts.Out.Separator, file.Output.Separator),
		Terminator: pick("out-term", opts.Out.Terminator, file.Output.Terminator),
		Encoding:   pick("out-encoding", opts.Out.Encoding, file.Output.Encoding),
		Locale:     pick("locale", opts.Out.Locale, file.Output.Locale),
		Integrity:  file.Output.Integrity,
	}
	if flags.Changed("integrity") {
		mode, err := streamcsv.ParseIntegrityMode(opts.Integrity)
		if err != nil {
			return Dialect{}, Dialect{}, err
		}
		out.Integrity = mode
	}
	return in, out, nil
}

func openInput(cmd *cobra.Command, path string, opts []streamcsv.Option) (*streamcsv.Reader, error) {
	if path == "-" {
		return streamcsv.NewReader(cmd.InOrStdin(), append(opts, streamcsv.WithLeaveOpen(true))...)
	}
	return streamcsv.OpenReader(path, opts...)
}

func openOutput(cmd *cobra.Command, path string, appendMode bool, opts []streamcsv.Option) (*streamcsv.Writer, error) {
	if path == "-" {
		return streamcsv.NewWriter(cmd.OutOrStdout(), append(opts, streamcsv.WithLeaveOpen(true))...)
	}
	return streamcsv.CreateWriter(path, appendMode, opts...)
}
