// # StreamCSV: A Field-by-Field Streaming CSV Codec for Go
//
// StreamCSV reads and writes CSV one field at a time over arbitrary character streams without loading whole documents into memory.
//
// # Features
//
// - Field-level reader backed by a fixed-size character block buffer with single-character pushback, so two-character row terminators are recognised across block boundaries.
// - Configurable separator and 1–2 character row terminator (default `,` and `\r\n`), caller-selected text encoding via `golang.org/x/text/encoding`.
// - Writer with uniform escaping for strings, integers, floats, booleans and runes, and locale-aware number formatting via `golang.org/x/text/message`.
// - Row integrity enforcement on write: `IntegrityNone`, `IntegrityLoose` (pads short rows) and `IntegrityStrict` (reports `*IntegrityError`).
// - Context-aware variants of every read and write call (`ReadFieldContext`, `ReadInt64Context`, `WriteFieldContext`, `WriteIntContext`, ...) sharing one implementation with the plain forms.
//
// # Tolerated input
//
// The reader is deliberately lenient: a quoted field left open at end of stream is returned with whatever content was read, and a quote in the middle of an unquoted field is kept as a literal character. Strict RFC 4180 validators treat both as malformed input.
//
// Blank lines are skipped rather than read as rows. A row holding a single empty field is written as a bare terminator, so it reads back as no row at all.
//
// # Concurrency
//
// A Reader or Writer is not safe for concurrent use. Callers must serialize access to a session.
package streamcsv
