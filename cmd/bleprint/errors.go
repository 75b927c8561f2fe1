package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/bleprint/internal/charset"
	"github.com/srg/bleprint/internal/cpcl"
	"github.com/srg/bleprint/internal/device"
)

// Command-level errors
var (
	// ErrNoPrinter indicates neither a device argument nor a remembered printer was available.
	ErrNoPrinter = errors.New("no printer selected")

	// ErrPrinterNotFound indicates a --name lookup scan ended without a match.
	ErrPrinterNotFound = errors.New("printer not found")
)

// FormatUserError turns known errors into short actionable messages.
// Unknown errors are returned verbatim.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, device.ErrAdapterClosed):
		return "Bluetooth adapter is not available."
	case errors.Is(err, device.ErrUnsupported):
		return "BLE is not supported on this platform."
	case errors.Is(err, device.ErrNotReady):
		return "Printer is connected but exposes no writable characteristic."
	case errors.Is(err, device.ErrNotConnected):
		return "Printer is not connected."
	case errors.Is(err, device.ErrAlreadyConnected):
		return "A printer is already connected."
	case errors.Is(err, ErrNoPrinter):
		return "No printer selected. Pass a device address, use --name, or run 'bleprint scan' first."
	case errors.Is(err, ErrPrinterNotFound):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "Operation timed out."
	case errors.Is(err, charset.ErrUnencodable):
		return fmt.Sprintf("Label contains characters outside GB2312: %v", err)
	case errors.Is(err, cpcl.ErrUnknownAlignment), errors.Is(err, cpcl.ErrUnknownDirective):
		return fmt.Sprintf("Invalid label: %v", err)
	default:
		return err.Error()
	}
}
