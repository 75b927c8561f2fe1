package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/bleprint/internal/device"
)

// ErrFakeUnknownDevice is returned by FakePlatform for GATT calls on unknown devices.
var ErrFakeUnknownDevice = errors.New("fake: unknown device")

// ValueWrite is one recorded FakePlatform.WriteValue call.
type ValueWrite struct {
	DeviceID           string
	ServiceUUID        string
	CharacteristicUUID string
	Data               []byte
}

type fakeService struct {
	service         device.Service
	characteristics []device.Characteristic
}

// FakePlatform is an in-memory device.Platform recording every call.
//
// Like the go-ble platform, a successful Connect reports connected=true and
// Disconnect reports connected=false through the registered listener before
// returning. Error fields inject failures into the matching operation.
type FakePlatform struct {
	mu sync.Mutex

	OpenErr           error
	StartDiscoveryErr error
	ConnectErr        error
	ListServicesErr   error
	WriteErr          error

	// DropOnConnect reports connected=false right after connected=true, as a remote drop would.
	DropOnConnect bool

	// Advertise is delivered as one discovery batch, asynchronously, after each accepted StartDiscovery.
	Advertise []device.DeviceInfo

	profiles map[string][]*fakeService

	opens            int
	closes           int
	startDiscoveries []bool
	stopDiscoveries  int
	connects         []string
	disconnects      []string
	writes           []ValueWrite

	availabilityListeners []func(bool)
	deviceListeners       []func([]device.DeviceInfo)
	connectionListeners   []func(bool)
}

// NewFakePlatform creates an empty fake platform.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{profiles: make(map[string][]*fakeService)}
}

// WithService appends a service (in enumeration order) to the GATT profile of deviceID.
func (p *FakePlatform) WithService(deviceID, uuid string, primary bool, chars ...device.Characteristic) *FakePlatform {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[deviceID] = append(p.profiles[deviceID], &fakeService{
		service:         device.Service{UUID: uuid, IsPrimary: primary},
		characteristics: chars,
	})
	return p
}

// WritableChar returns a characteristic with the Write property.
func WritableChar(uuid string) device.Characteristic {
	return device.Characteristic{UUID: uuid, Properties: device.Properties{Write: true}}
}

// ReadOnlyChar returns a characteristic without any write property.
func ReadOnlyChar(uuid string) device.Characteristic {
	return device.Characteristic{UUID: uuid, Properties: device.Properties{Read: true, Notify: true}}
}

func (p *FakePlatform) Open(_ context.Context) error {
	p.mu.Lock()
	p.opens++
	err := p.OpenErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.EmitAvailability(true)
	return nil
}

func (p *FakePlatform) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.EmitAvailability(false)
	return nil
}

func (p *FakePlatform) OnAvailabilityChanged(cb func(available bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.availabilityListeners = append(p.availabilityListeners, cb)
}

func (p *FakePlatform) StartDiscovery(_ context.Context, allowDuplicates bool) error {
	p.mu.Lock()
	if p.StartDiscoveryErr != nil {
		p.mu.Unlock()
		return p.StartDiscoveryErr
	}
	p.startDiscoveries = append(p.startDiscoveries, allowDuplicates)
	batch := append([]device.DeviceInfo{}, p.Advertise...)
	p.mu.Unlock()

	if len(batch) > 0 {
		go p.EmitDevices(batch...)
	}
	return nil
}

func (p *FakePlatform) StopDiscovery() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopDiscoveries++
	return nil
}

func (p *FakePlatform) OnDeviceFound(cb func(devices []device.DeviceInfo)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceListeners = append(p.deviceListeners, cb)
}

func (p *FakePlatform) Connect(_ context.Context, deviceID string) error {
	p.mu.Lock()
	p.connects = append(p.connects, deviceID)
	err, drop := p.ConnectErr, p.DropOnConnect
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.EmitConnection(true)
	if drop {
		p.EmitConnection(false)
	}
	return nil
}

func (p *FakePlatform) Disconnect(deviceID string) error {
	p.mu.Lock()
	p.disconnects = append(p.disconnects, deviceID)
	p.mu.Unlock()
	p.EmitConnection(false)
	return nil
}

func (p *FakePlatform) OnConnectionStateChanged(cb func(connected bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connectionListeners = append(p.connectionListeners, cb)
}

func (p *FakePlatform) ListServices(_ context.Context, deviceID string) ([]device.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListServicesErr != nil {
		return nil, p.ListServicesErr
	}
	services := make([]device.Service, 0, len(p.profiles[deviceID]))
	for _, s := range p.profiles[deviceID] {
		services = append(services, s.service)
	}
	return services, nil
}

func (p *FakePlatform) ListCharacteristics(_ context.Context, deviceID, serviceUUID string) ([]device.Characteristic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.profiles[deviceID] {
		if s.service.UUID == serviceUUID {
			out := make([]device.Characteristic, len(s.characteristics))
			copy(out, s.characteristics)
			return out, nil
		}
	}
	return nil, ErrFakeUnknownDevice
}

func (p *FakePlatform) WriteValue(deviceID, serviceUUID, characteristicUUID string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.writes = append(p.writes, ValueWrite{
		DeviceID:           deviceID,
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: characteristicUUID,
		Data:               cp,
	})
	return p.WriteErr
}

// EmitAvailability delivers an adapter availability notification.
func (p *FakePlatform) EmitAvailability(available bool) {
	p.mu.Lock()
	listeners := append([]func(bool){}, p.availabilityListeners...)
	p.mu.Unlock()
	for _, cb := range listeners {
		cb(available)
	}
}

// EmitDevices delivers a discovery batch.
func (p *FakePlatform) EmitDevices(devices ...device.DeviceInfo) {
	p.mu.Lock()
	listeners := append([]func([]device.DeviceInfo){}, p.deviceListeners...)
	p.mu.Unlock()
	for _, cb := range listeners {
		cb(devices)
	}
}

// EmitConnection delivers a connection state notification.
func (p *FakePlatform) EmitConnection(connected bool) {
	p.mu.Lock()
	listeners := append([]func(bool){}, p.connectionListeners...)
	p.mu.Unlock()
	for _, cb := range listeners {
		cb(connected)
	}
}

// ListenerCounts returns how many availability, device and connection listeners are installed.
func (p *FakePlatform) ListenerCounts() (availability, devices, connection int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availabilityListeners), len(p.deviceListeners), len(p.connectionListeners)
}

func (p *FakePlatform) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func (p *FakePlatform) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// StartDiscoveries returns the allowDuplicates flag of every accepted StartDiscovery call.
func (p *FakePlatform) StartDiscoveries() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool{}, p.startDiscoveries...)
}

func (p *FakePlatform) StopDiscoveries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopDiscoveries
}

func (p *FakePlatform) Connects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.connects...)
}

func (p *FakePlatform) Disconnects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.disconnects...)
}

// Writes returns every recorded WriteValue call in order.
func (p *FakePlatform) Writes() []ValueWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ValueWrite{}, p.writes...)
}

// WrittenBytes concatenates the payloads of every recorded write.
func (p *FakePlatform) WrittenBytes() []byte {
	var out []byte
	for _, w := range p.Writes() {
		out = append(out, w.Data...)
	}
	return out
}
