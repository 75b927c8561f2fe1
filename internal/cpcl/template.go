package cpcl

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directive kinds accepted in a Template.
const (
	KindText         = "text"
	KindBarCode      = "barcode"
	KindTextBarCode  = "text_barcode"
	KindVBarCode     = "vbarcode"
	KindTextVBarCode = "text_vbarcode"
	KindQRCode       = "qrcode"
	KindAlign        = "align"
	KindRaw          = "raw"
)

// ErrUnknownDirective is returned by Template.Build for an unrecognized directive kind.
var ErrUnknownDirective = errors.New("unknown directive")

// Directive is one templated builder call.
// Size is the font size for text, the unit height for barcodes and the module
// size for QR codes. An omitted barcode or QR size takes DefaultBarCodeHeight
// or DefaultQRUnit.
type Directive struct {
	Kind string `yaml:"kind"`
	Data string `yaml:"data"`
	Size *int   `yaml:"size,omitempty"`
	X    int    `yaml:"x,omitempty"`
	Y    int    `yaml:"y,omitempty"`
}

func (d Directive) size(fallback int) int {
	if d.Size == nil {
		return fallback
	}
	return *d.Size
}

// Template is a declarative label description, typically loaded from YAML:
//
//	options:
//	  x_resolution: 200
//	  y_resolution: 200
//	  height: 200
//	  print_count: 1
//	directives:
//	  - kind: text
//	    data: HELLO
//	    x: 10
//	    y: 10
type Template struct {
	Options    Options     `yaml:"options"`
	Directives []Directive `yaml:"directives"`
}

// LoadTemplate decodes a YAML template, rejecting unknown fields.
func LoadTemplate(r io.Reader) (*Template, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var t Template
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("label template is empty")
		}
		return nil, fmt.Errorf("failed to parse label template: %w", err)
	}
	return &t, nil
}

// Build replays the template directives onto a new Label.
func (t *Template) Build() (*Label, error) {
	l := New(t.Options)
	for i, d := range t.Directives {
		switch strings.ToLower(d.Kind) {
		case KindText:
			l.Text(d.Data, d.size(0), d.X, d.Y)
		case KindBarCode:
			l.BarCode(d.Data, d.size(DefaultBarCodeHeight), d.X, d.Y)
		case KindTextBarCode:
			l.TextBarCode(d.Data, d.size(DefaultBarCodeHeight), d.X, d.Y)
		case KindVBarCode:
			l.VBarCode(d.Data, d.size(DefaultBarCodeHeight), d.X, d.Y)
		case KindTextVBarCode:
			l.TextVBarCode(d.Data, d.size(DefaultBarCodeHeight), d.X, d.Y)
		case KindQRCode:
			l.QRCode(d.Data, d.size(DefaultQRUnit), d.X, d.Y)
		case KindAlign:
			l.AlignString(d.Data)
		case KindRaw:
			l.Raw(d.Data)
		default:
			return nil, fmt.Errorf("directive %d: %q: %w", i, d.Kind, ErrUnknownDirective)
		}
		if err := l.Err(); err != nil {
			return nil, fmt.Errorf("directive %d: %w", i, err)
		}
	}
	return l, nil
}
