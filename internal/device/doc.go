// Package device defines the Bluetooth Low Energy (BLE) capability surface that
// the label printing stack consumes from the host platform.
//
// The package is intentionally free of any BLE library imports. It provides:
//   - DeviceInfo, the per-sighting advertisement record
//   - Service, Characteristic and Properties GATT descriptions
//   - Adapter, Discovery, Connector and GATT capability interfaces
//   - Structured connection errors comparable with errors.Is
//   - UUID normalization shared by every platform implementation
//
// Concrete implementations live in sub-packages (see internal/device/go-ble).
package device
