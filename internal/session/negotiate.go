package session

import (
	"context"
	"fmt"

	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/transport"
)

// Negotiate picks the write endpoint of a connected device: the first
// characteristic with the Write property, searching primary services in
// platform order and characteristics in platform order within each.
// It returns false with a nil error when the device has no such characteristic.
func Negotiate(ctx context.Context, gatt device.GATT, deviceID string) (transport.Target, bool, error) {
	services, err := gatt.ListServices(ctx, deviceID)
	if err != nil {
		return transport.Target{}, false, fmt.Errorf("failed to list services: %w", err)
	}

	for _, svc := range services {
		if !svc.IsPrimary {
			continue
		}
		chars, err := gatt.ListCharacteristics(ctx, deviceID, svc.UUID)
		if err != nil {
			return transport.Target{}, false, fmt.Errorf("failed to list characteristics of service %s: %w", svc.UUID, err)
		}
		for _, c := range chars {
			if c.Properties.Write {
				return transport.Target{
					DeviceID:           deviceID,
					ServiceUUID:        svc.UUID,
					CharacteristicUUID: c.UUID,
				}, true, nil
			}
		}
	}
	return transport.Target{}, false, nil
}
