package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "device", "service", "characteristic"
	UUIDs    []string // One or more identifiers (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	AdapterClosed    ConnectionState = "adapter_closed"
	BluetoothOff     ConnectionState = "bluetooth_off"
	NotReady         ConnectionState = "not_ready"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrAdapterClosed    = &ConnectionError{State: AdapterClosed}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}

	// ErrNotReady is returned by writes issued while the session is either
	// disconnected or connected to a device without a writable characteristic.
	ErrNotReady = &ConnectionError{State: NotReady}
)

// Operation errors
var (
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// DeviceInfo is a single advertisement sighting as reported by the platform.
// A zero DeviceInfo (empty DeviceID) is the "no device" sentinel.
//
//nolint:revive // DeviceInfo name is intentional for clarity when used as a device.DeviceInfo
type DeviceInfo struct {
	DeviceID             string            `json:"deviceId" yaml:"device_id"`
	Name                 string            `json:"name" yaml:"name"`
	LocalName            string            `json:"localName" yaml:"local_name"`
	RSSI                 int               `json:"RSSI" yaml:"rssi"`
	AdvertisData         []byte            `json:"advertisData,omitempty" yaml:"advertis_data,omitempty"`
	AdvertisServiceUUIDs []string          `json:"advertisServiceUUIDs,omitempty" yaml:"advertis_service_uuids,omitempty"`
	ServiceData          map[string][]byte `json:"serviceData,omitempty" yaml:"service_data,omitempty"`
}

// IsEmpty reports whether d is the "no device" sentinel.
func (d DeviceInfo) IsEmpty() bool {
	return strings.TrimSpace(d.DeviceID) == ""
}

// DisplayName returns the best human-readable name available.
func (d DeviceInfo) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.LocalName != "" {
		return d.LocalName
	}
	return d.DeviceID
}

// Service is a GATT service as enumerated on a connected device.
type Service struct {
	UUID      string
	IsPrimary bool
}

// Properties is the subset of GATT characteristic properties the printer stack inspects.
type Properties struct {
	Read                 bool
	Write                bool
	WriteWithoutResponse bool
	Notify               bool
	Indicate             bool
}

// Characteristic is a GATT characteristic as enumerated within a service.
type Characteristic struct {
	UUID       string
	Properties Properties
}

// Adapter controls the host BLE adapter.
type Adapter interface {
	Open(ctx context.Context) error
	Close() error
	OnAvailabilityChanged(cb func(available bool))
}

// Discovery controls BLE device discovery.
type Discovery interface {
	StartDiscovery(ctx context.Context, allowDuplicates bool) error
	StopDiscovery() error
	OnDeviceFound(cb func(devices []DeviceInfo))
}

// Connector establishes and tears down the single BLE connection.
type Connector interface {
	Connect(ctx context.Context, deviceID string) error
	Disconnect(deviceID string) error
	OnConnectionStateChanged(cb func(connected bool))
}

// GATT enumerates and writes GATT attributes of a connected device.
type GATT interface {
	ListServices(ctx context.Context, deviceID string) ([]Service, error)
	ListCharacteristics(ctx context.Context, deviceID, serviceUUID string) ([]Characteristic, error)
	WriteValue(deviceID, serviceUUID, characteristicUUID string, data []byte) error
}

// Platform is the full capability surface of a host BLE stack.
type Platform interface {
	Adapter
	Discovery
	Connector
	GATT
}
