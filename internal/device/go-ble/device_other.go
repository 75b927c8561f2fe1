//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"

	"github.com/srg/bleprint/internal/device"
)

// DeviceFactory reports that no BLE stack is available on this OS.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return nil, fmt.Errorf("%s: %w", runtime.GOOS, device.ErrUnsupported)
}
