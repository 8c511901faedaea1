// Package output formats CLI results as human-readable text or JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format selects how command results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Formatter carries the resolved format and destination for one
// command invocation. Commands branch on IsJSON and either emit a
// JSON document or write text through Printf and Println.
type Formatter struct {
	format Format
	writer io.Writer
}

// NewFormatter builds a formatter writing to w in the given format.
// Resolve FormatAuto with DetectFormat before calling.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, writer: w}
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format {
	return f.format
}

// Writer returns the destination writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// IsJSON reports whether results should be emitted as JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Printf writes formatted text to the destination.
func (f *Formatter) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(f.writer, format, args...)
	return err
}

// Println writes a line of text to the destination.
func (f *Formatter) Println(args ...any) error {
	_, err := fmt.Fprintln(f.writer, args...)
	return err
}

// DetectFormat resolves FormatAuto: text when w is a terminal, JSON
// otherwise so piped output stays machine-readable. Explicit formats
// pass through unchanged.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto {
		return explicit
	}

	if f, ok := w.(*os.File); ok {
		if term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd fits in int on supported platforms
			return FormatText
		}
	}
	return FormatJSON
}

// ParseFormat parses the --output flag value. Unknown values fall back
// to auto detection.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}
