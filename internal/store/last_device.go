package store

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/srg/bleprint/internal/device"
)

// LastDeviceKey is the record holding the most recently connected device.
const LastDeviceKey = "LAST_CONNECT_DEVICE_INFO"

// LastDevice stores the device a session should auto-connect to.
type LastDevice struct {
	kv KV
}

func NewLastDevice(kv KV) *LastDevice {
	return &LastDevice{kv: kv}
}

// Load returns the stored device, or an empty DeviceInfo and false when none is stored.
func (l *LastDevice) Load() (device.DeviceInfo, bool, error) {
	data, err := l.kv.Get(LastDeviceKey)
	if errors.Is(err, ErrNotFound) {
		return device.DeviceInfo{}, false, nil
	}
	if err != nil {
		return device.DeviceInfo{}, false, err
	}
	var d device.DeviceInfo
	if err := yaml.Unmarshal(data, &d); err != nil {
		return device.DeviceInfo{}, false, fmt.Errorf("failed to decode last device: %w", err)
	}
	if d.IsEmpty() {
		return device.DeviceInfo{}, false, nil
	}
	return d, true, nil
}

// Save replaces the stored device.
func (l *LastDevice) Save(d device.DeviceInfo) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode last device: %w", err)
	}
	return l.kv.Set(LastDeviceKey, data)
}

// Clear forgets the stored device.
func (l *LastDevice) Clear() error {
	return l.kv.Delete(LastDeviceKey)
}
