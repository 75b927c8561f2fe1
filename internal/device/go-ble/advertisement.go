package goble

import (
	"strings"
	"unicode"

	"github.com/go-ble/ble"

	"github.com/srg/bleprint/internal/device"
)

// NewDeviceInfo converts a go-ble advertisement into a DeviceInfo sighting.
//
// go-ble exposes a single advertised name, so it is reported as both Name
// and LocalName. When a device advertises no name, a readable ASCII run in
// its manufacturer data, if any, is used as Name.
func NewDeviceInfo(adv ble.Advertisement) device.DeviceInfo {
	info := device.DeviceInfo{
		Name:         adv.LocalName(),
		LocalName:    adv.LocalName(),
		RSSI:         adv.RSSI(),
		AdvertisData: adv.ManufacturerData(),
	}
	if addr := adv.Addr(); addr != nil {
		info.DeviceID = addr.String()
	}
	if info.Name == "" {
		info.Name = nameFromManufacturerData(info.AdvertisData)
	}

	for _, u := range adv.Services() {
		info.AdvertisServiceUUIDs = append(info.AdvertisServiceUUIDs, device.NormalizeUUID(u.String()))
	}
	if sd := adv.ServiceData(); len(sd) > 0 {
		info.ServiceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			info.ServiceData[device.NormalizeUUID(d.UUID.String())] = d.Data
		}
	}
	return info
}

func nameFromManufacturerData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	for i := 0; i < len(data)-3; i++ {
		if !isReadableASCII(data[i]) {
			continue
		}
		end := i
		for end < len(data) && end < i+32 && isReadableASCII(data[end]) {
			end++
		}
		if name := strings.TrimSpace(string(data[i:end])); isValidDeviceName(name) {
			return name
		}
		i = end
	}
	return ""
}

func isReadableASCII(b byte) bool {
	return b >= 32 && b <= 126
}

// isValidDeviceName accepts 3..32 characters with at least one letter.
func isValidDeviceName(name string) bool {
	if len(name) < 3 || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
