// Package goble implements device.Platform on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/groutine"
)

// Platform drives a single host adapter with at most one connection.
//
// Listener callbacks are invoked without internal locks held, on the
// goroutine that observed the change (scan handler, disconnect monitor or
// the caller of Open, Close, Connect and Disconnect).
type Platform struct {
	factory func() (ble.Device, error)
	logger  *logrus.Logger

	mu       sync.Mutex
	dev      ble.Device
	scanStop context.CancelFunc
	scanDone <-chan struct{}
	conn     *connection

	onAvailability func(bool)
	onDevices      func([]device.DeviceInfo)
	onConnection   func(bool)
}

type connection struct {
	id       string
	client   ble.Client
	closed   chan struct{}
	services map[string]*ble.Service
	chars    map[string]*ble.Characteristic
}

func charKey(serviceUUID, charUUID string) string {
	return device.NormalizeUUID(serviceUUID) + "/" + device.NormalizeUUID(charUUID)
}

// NewPlatform creates a platform that builds its adapter with factory.
// A nil factory uses DeviceFactory and a nil logger falls back to logrus.New().
func NewPlatform(factory func() (ble.Device, error), logger *logrus.Logger) *Platform {
	if factory == nil {
		factory = DeviceFactory
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Platform{factory: factory, logger: logger}
}

func (p *Platform) OnAvailabilityChanged(cb func(available bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAvailability = cb
}

func (p *Platform) OnDeviceFound(cb func(devices []device.DeviceInfo)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDevices = cb
}

func (p *Platform) OnConnectionStateChanged(cb func(connected bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnection = cb
}

// Open creates the host device. Opening an open adapter is a no-op.
func (p *Platform) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.dev != nil {
		p.mu.Unlock()
		return nil
	}
	dev, err := p.factory()
	if err != nil {
		p.mu.Unlock()
		p.logger.WithField("error", err).Error("Failed to open BLE adapter")
		return NormalizeError(err)
	}
	p.dev = dev
	cb := p.onAvailability
	p.mu.Unlock()

	p.logger.Debug("BLE adapter opened")
	if cb != nil {
		cb(true)
	}
	return nil
}

// Close stops discovery, drops the connection and releases the host device.
func (p *Platform) Close() error {
	_ = p.StopDiscovery()

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		if err := p.Disconnect(conn.id); err != nil {
			p.logger.WithField("error", err).Warn("Failed to disconnect while closing adapter")
		}
	}

	p.mu.Lock()
	dev := p.dev
	p.dev = nil
	cb := p.onAvailability
	p.mu.Unlock()
	if dev == nil {
		return nil
	}

	err := dev.Stop()
	p.logger.Debug("BLE adapter closed")
	if cb != nil {
		cb(false)
	}
	return NormalizeError(err)
}

// StartDiscovery scans in the background until StopDiscovery or ctx ends.
// Each advertisement is reported as a single-element batch.
func (p *Platform) StartDiscovery(ctx context.Context, allowDuplicates bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return device.ErrAdapterClosed
	}
	if p.scanStop != nil {
		return nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	dev := p.dev
	p.scanStop = cancel
	p.scanDone = groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, allowDuplicates, p.handleAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.logger.WithField("error", NormalizeError(err)).Warn("BLE scan stopped with error")
		}
		p.mu.Lock()
		if p.scanDone != nil && ctx.Err() == nil {
			// scan ended on its own
			p.scanStop, p.scanDone = nil, nil
		}
		p.mu.Unlock()
		cancel()
	})
	p.logger.WithField("allow_duplicates", allowDuplicates).Debug("BLE scan started")
	return nil
}

func (p *Platform) handleAdvertisement(adv ble.Advertisement) {
	p.mu.Lock()
	cb := p.onDevices
	p.mu.Unlock()
	if cb != nil {
		cb([]device.DeviceInfo{NewDeviceInfo(adv)})
	}
}

// StopDiscovery cancels a running scan and waits for it to end. It is safe when idle.
func (p *Platform) StopDiscovery() error {
	p.mu.Lock()
	stop, done := p.scanStop, p.scanDone
	p.scanStop, p.scanDone = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return nil
	}
	stop()
	<-done
	p.logger.Debug("BLE scan stopped")
	return nil
}

// Connect dials deviceID and reports connected=true on success.
func (p *Platform) Connect(ctx context.Context, deviceID string) error {
	p.mu.Lock()
	dev := p.dev
	busy := p.conn != nil
	p.mu.Unlock()
	if dev == nil {
		return device.ErrAdapterClosed
	}
	if busy {
		return device.ErrAlreadyConnected
	}

	p.logger.WithField("device_id", deviceID).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(deviceID))
	if err != nil {
		return NormalizeError(err)
	}

	conn := &connection{
		id:       deviceID,
		client:   client,
		closed:   make(chan struct{}),
		services: make(map[string]*ble.Service),
		chars:    make(map[string]*ble.Characteristic),
	}
	p.mu.Lock()
	p.conn = conn
	cb := p.onConnection
	p.mu.Unlock()

	p.logger.WithField("device_id", deviceID).Info("BLE device connected")
	if cb != nil {
		cb(true)
	}

	// started after cb(true) so a remote drop is always reported after it
	groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
		p.monitor(conn)
	})
	return nil
}

// monitor reports a connection lost without a Disconnect call.
func (p *Platform) monitor(conn *connection) {
	select {
	case <-conn.client.Disconnected():
	case <-conn.closed:
		return
	}

	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	cb := p.onConnection
	p.mu.Unlock()

	p.logger.WithField("device_id", conn.id).Warn("BLE device disconnected")
	if cb != nil {
		cb(false)
	}
}

// Disconnect cancels the connection to deviceID and reports connected=false.
func (p *Platform) Disconnect(deviceID string) error {
	p.mu.Lock()
	conn := p.conn
	if conn == nil || conn.id != deviceID {
		p.mu.Unlock()
		return device.ErrNotConnected
	}
	p.conn = nil
	close(conn.closed)
	cb := p.onConnection
	p.mu.Unlock()

	err := conn.client.CancelConnection()
	p.logger.WithField("device_id", deviceID).Info("BLE device disconnected")
	if cb != nil {
		cb(false)
	}
	return NormalizeError(err)
}

func (p *Platform) connected(deviceID string) (*connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.id != deviceID {
		return nil, device.ErrNotConnected
	}
	return p.conn, nil
}

// ListServices discovers the services of the connected device in platform order.
// go-ble does not distinguish included services, so every service is reported primary.
func (p *Platform) ListServices(ctx context.Context, deviceID string) ([]device.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := p.connected(deviceID)
	if err != nil {
		return nil, err
	}
	svcs, err := conn.client.DiscoverServices(nil)
	if err != nil {
		return nil, NormalizeError(err)
	}

	out := make([]device.Service, 0, len(svcs))
	p.mu.Lock()
	for _, s := range svcs {
		uuid := device.NormalizeUUID(s.UUID.String())
		conn.services[uuid] = s
		out = append(out, device.Service{UUID: uuid, IsPrimary: true})
	}
	p.mu.Unlock()
	return out, nil
}

// ListCharacteristics discovers the characteristics of a service returned by ListServices.
func (p *Platform) ListCharacteristics(ctx context.Context, deviceID, serviceUUID string) ([]device.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := p.connected(deviceID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	svc, ok := conn.services[device.NormalizeUUID(serviceUUID)]
	p.mu.Unlock()
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}

	chars, err := conn.client.DiscoverCharacteristics(nil, svc)
	if err != nil {
		return nil, NormalizeError(err)
	}

	out := make([]device.Characteristic, 0, len(chars))
	p.mu.Lock()
	for _, c := range chars {
		uuid := device.NormalizeUUID(c.UUID.String())
		conn.chars[charKey(serviceUUID, uuid)] = c
		out = append(out, device.Characteristic{UUID: uuid, Properties: NewProperties(c.Property)})
	}
	p.mu.Unlock()
	return out, nil
}

// WriteValue writes one value, with response when the characteristic supports it.
func (p *Platform) WriteValue(deviceID, serviceUUID, characteristicUUID string, data []byte) error {
	conn, err := p.connected(deviceID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	c, ok := conn.chars[charKey(serviceUUID, characteristicUUID)]
	p.mu.Unlock()
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, characteristicUUID}}
	}

	noRsp := c.Property&ble.CharWrite == 0 && c.Property&ble.CharWriteNR != 0
	return NormalizeError(conn.client.WriteCharacteristic(c, data, noRsp))
}
