package cpcl

import (
	"fmt"
	"strings"
)

// Alignment is the field justification mode.
type Alignment int

const (
	AlignCenter Alignment = iota
	AlignLeft
	AlignRight
)

func (a Alignment) command() (string, bool) {
	switch a {
	case AlignCenter:
		return "CENTER", true
	case AlignLeft:
		return "LEFT", true
	case AlignRight:
		return "RIGHT", true
	default:
		return "", false
	}
}

// String returns the CPCL command name.
func (a Alignment) String() string {
	if cmd, ok := a.command(); ok {
		return cmd
	}
	return fmt.Sprintf("Alignment(%d)", int(a))
}

// ParseAlignment maps ct/lt/rt (any case) or center/left/right to an Alignment.
func ParseAlignment(key string) (Alignment, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "ct", "center":
		return AlignCenter, nil
	case "lt", "left":
		return AlignLeft, nil
	case "rt", "right":
		return AlignRight, nil
	default:
		return 0, fmt.Errorf("%q: %w", key, ErrUnknownAlignment)
	}
}
