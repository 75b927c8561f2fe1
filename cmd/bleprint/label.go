package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/bleprint/internal/cpcl"
)

// labelFlags composes a label either from a YAML template or from flags.
type labelFlags struct {
	template    string
	texts       []string
	barcode     string
	qr          string
	align       string
	fontSize    int
	x           int
	lineSpacing int
	opts        cpcl.Options
}

func (f *labelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "YAML label template file")
	cmd.Flags().StringArrayVar(&f.texts, "text", nil, "Text line to print (repeatable)")
	cmd.Flags().StringVar(&f.barcode, "barcode", "", "Code 128 data printed below the text")
	cmd.Flags().StringVar(&f.qr, "qr", "", "QR code data printed below the text")
	cmd.Flags().StringVar(&f.align, "align", "", "Justification (ct, lt, rt)")
	cmd.Flags().IntVar(&f.fontSize, "font-size", 0, "Font size selector for text lines")
	cmd.Flags().IntVar(&f.x, "x", 10, "Horizontal position of composed fields")
	cmd.Flags().IntVar(&f.lineSpacing, "line-spacing", 30, "Vertical distance between composed fields")
	cmd.Flags().IntVar(&f.opts.Offset, "offset", 0, "Label horizontal offset")
	cmd.Flags().IntVar(&f.opts.XResolution, "x-res", 200, "Horizontal resolution (dpi)")
	cmd.Flags().IntVar(&f.opts.YResolution, "y-res", 200, "Vertical resolution (dpi)")
	cmd.Flags().IntVar(&f.opts.Height, "height", 200, "Label height (dots)")
	cmd.Flags().IntVar(&f.opts.PrintCount, "copies", 1, "Number of labels to print")
}

func (f *labelFlags) build() (*cpcl.Label, error) {
	if f.template != "" {
		if len(f.texts) > 0 || f.barcode != "" || f.qr != "" {
			return nil, errors.New("--template cannot be combined with --text, --barcode or --qr")
		}
		file, err := os.Open(f.template)
		if err != nil {
			return nil, fmt.Errorf("failed to open template: %w", err)
		}
		defer file.Close()

		tmpl, err := cpcl.LoadTemplate(file)
		if err != nil {
			return nil, err
		}
		return tmpl.Build()
	}

	if len(f.texts) == 0 && f.barcode == "" && f.qr == "" {
		return nil, errors.New("nothing to print: use --template, --text, --barcode or --qr")
	}

	l := cpcl.New(f.opts)
	if f.align != "" {
		l.AlignString(f.align)
	}
	y := 10
	for _, text := range f.texts {
		l.Text(text, f.fontSize, f.x, y)
		y += f.lineSpacing
	}
	if f.barcode != "" {
		l.TextBarCode(f.barcode, cpcl.DefaultBarCodeHeight, f.x, y)
		y += cpcl.DefaultBarCodeHeight + f.lineSpacing
	}
	if f.qr != "" {
		l.QRCode(f.qr, cpcl.DefaultQRUnit, f.x, y)
	}
	if err := l.Err(); err != nil {
		return nil, err
	}
	return l, nil
}
