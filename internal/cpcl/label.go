// Package cpcl builds CPCL label programs for line-oriented thermal printers.
//
// A Label is a single-writer accumulator: every directive appends one or more
// CRLF-terminated lines in call order and returns the Label for chaining.
// The builder does not validate command semantics; the caller owns ordering.
//
//	buf, err := cpcl.New(cpcl.Options{XResolution: 200, YResolution: 200, Height: 200, PrintCount: 1}).
//		Text("HELLO", 0, 10, 10).
//		QRCode("https://example.com", 5, 10, 60).
//		Buffer()
package cpcl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/bleprint/internal/charset"
)

const (
	// LineEnding terminates every CPCL command line.
	LineEnding = "\r\n"

	// Terminator is appended exactly once when the label is finalized.
	Terminator = "FORM" + LineEnding + "PRINT" + LineEnding

	// DefaultBarCodeHeight is the unit height templates and the CLI use when none is given.
	DefaultBarCodeHeight = 50

	// DefaultQRUnit is the QR module size templates and the CLI use when none is given.
	DefaultQRUnit = 5
)

// Options is the mandatory label header.
type Options struct {
	Offset      int `yaml:"offset"`       // horizontal offset of the whole label
	XResolution int `yaml:"x_resolution"` // horizontal resolution (dpi)
	YResolution int `yaml:"y_resolution"` // vertical resolution (dpi)
	Height      int `yaml:"height"`       // maximum label height (dots)
	PrintCount  int `yaml:"print_count"`  // number of labels to print
}

// Label accumulates a CPCL command stream.
type Label struct {
	buf strings.Builder
	err error
}

// New creates a label and writes its header line.
func New(opts Options) *Label {
	l := &Label{}
	fmt.Fprintf(&l.buf, "! %d %d %d %d %d%s", opts.Offset, opts.XResolution, opts.YResolution, opts.Height, opts.PrintCount, LineEnding)
	return l
}

// Text prints a line of text at (x, y) using font 8 with the given size selector.
func (l *Label) Text(text string, fontSize, x, y int) *Label {
	fmt.Fprintf(&l.buf, "T 8 %d %d %d %s %s", fontSize, x, y, text, LineEnding)
	return l
}

// BarCode prints a horizontal Code 128 barcode.
func (l *Label) BarCode(data string, height, x, y int) *Label {
	l.barcode("B", data, height, x, y, false)
	return l
}

// TextBarCode prints a horizontal Code 128 barcode with its human-readable text.
func (l *Label) TextBarCode(data string, height, x, y int) *Label {
	l.barcode("B", data, height, x, y, true)
	return l
}

// VBarCode prints a vertical Code 128 barcode.
func (l *Label) VBarCode(data string, height, x, y int) *Label {
	l.barcode("VB", data, height, x, y, false)
	return l
}

// TextVBarCode prints a vertical Code 128 barcode with its human-readable text.
func (l *Label) TextVBarCode(data string, height, x, y int) *Label {
	l.barcode("VB", data, height, x, y, true)
	return l
}

func (l *Label) barcode(cmd, data string, height, x, y int, annotated bool) {
	if annotated {
		l.buf.WriteString("BT 7 0 5" + LineEnding)
	}
	fmt.Fprintf(&l.buf, "%s 128 1 1 %d %d %d %s%s", cmd, height, x, y, data, LineEnding)
	if annotated {
		l.buf.WriteString("BT OFF" + LineEnding)
	}
}

// QRCode prints a QR code whose modules are unit dots wide and high.
func (l *Label) QRCode(data string, unit, x, y int) *Label {
	fmt.Fprintf(&l.buf, "B QR %d %d M 2 U %d%s", x, y, unit, LineEnding)
	fmt.Fprintf(&l.buf, "M0A,QR code %s%s", data, LineEnding)
	l.buf.WriteString("ENDQR" + LineEnding)
	return l
}

// Align sets the justification of subsequent fields.
// An invalid Alignment is recorded and reported by Err, CPCLString is unaffected.
func (l *Label) Align(a Alignment) *Label {
	cmd, ok := a.command()
	if !ok {
		l.setErr(fmt.Errorf("align %d: %w", int(a), ErrUnknownAlignment))
		return l
	}
	l.buf.WriteString(cmd + LineEnding)
	return l
}

// AlignString parses key with ParseAlignment and applies it.
func (l *Label) AlignString(key string) *Label {
	a, err := ParseAlignment(key)
	if err != nil {
		l.setErr(err)
		return l
	}
	return l.Align(a)
}

// Raw appends pre-formatted CPCL. Line endings are normalized to CRLF and a
// missing final line ending is added so later directives start on a new line.
func (l *Label) Raw(cpcl string) *Label {
	if cpcl == "" {
		return l
	}
	normalized := strings.ReplaceAll(cpcl, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", LineEnding)
	if !strings.HasSuffix(normalized, LineEnding) {
		normalized += LineEnding
	}
	l.buf.WriteString(normalized)
	return l
}

// Err returns the first directive error recorded while building.
func (l *Label) Err() error {
	return l.err
}

func (l *Label) setErr(err error) {
	if l.err == nil {
		l.err = err
	}
}

// finalize appends Terminator unless the stream already contains it anywhere,
// including inside Raw text.
func (l *Label) finalize() string {
	if !strings.Contains(l.buf.String(), Terminator) {
		l.buf.WriteString(Terminator)
	}
	return l.buf.String()
}

// CPCLString finalizes the label and returns the command text.
// Repeated calls return identical text.
func (l *Label) CPCLString() string {
	return l.finalize()
}

// Buffer finalizes the label and returns it encoded as GB2312 bytes,
// ready to be handed to the chunked write transport.
func (l *Label) Buffer() ([]byte, error) {
	text := l.finalize()
	if l.err != nil {
		return nil, l.err
	}
	b, err := charset.EncodeGB2312(text)
	if err != nil {
		return nil, fmt.Errorf("failed to encode label: %w", err)
	}
	return b, nil
}

// Base64 finalizes the label and returns the GB2312 bytes in transport text form.
func (l *Label) Base64() (string, error) {
	b, err := l.Buffer()
	if err != nil {
		return "", err
	}
	return charset.ToTransport(b), nil
}

// ErrUnknownAlignment is returned for alignment keys or values outside Alignment.
var ErrUnknownAlignment = errors.New("unknown alignment")
