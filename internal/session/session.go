// Package session owns the printer connection lifecycle: opening the
// adapter, discovering devices, connecting, negotiating the write
// endpoint and handing label buffers to the chunked transport.
//
// A Session serializes its own state behind a mutex. Platform callbacks may
// arrive on any goroutine; events reach the UI only through the Hub and are
// emitted with no Session lock held.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/events"
	"github.com/srg/bleprint/internal/registry"
	"github.com/srg/bleprint/internal/store"
	"github.com/srg/bleprint/internal/transport"
)

// DefaultConnectTimeout bounds Connect, including endpoint negotiation.
const DefaultConnectTimeout = 30 * time.Second

// ErrShutdown is returned by operations on a Session after Shutdown.
var ErrShutdown = errors.New("session is shut down")

// Options tunes a Session.
type Options struct {
	ConnectTimeout time.Duration
	Transport      transport.Options
}

// Session is the single connection context of the application.
type Session struct {
	platform device.Platform
	hub      *events.Hub
	devices  *registry.Registry
	last     *store.LastDevice
	writer   *transport.Writer
	opts     Options
	logger   *logrus.Logger

	listenOnce sync.Once

	mu                sync.RWMutex
	state             State
	adapterIsOpen     bool
	scanning          bool
	connected         bool
	connectDeviceInfo device.DeviceInfo
	canWrite          bool
	target            transport.Target
}

// New creates a session over platform. last may be nil to disable
// persistence, hub may be nil to create a private one and a nil logger
// falls back to logrus.New().
func New(platform device.Platform, last *store.LastDevice, hub *events.Hub, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if hub == nil {
		hub = events.NewHub(logger)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	return &Session{
		platform: platform,
		hub:      hub,
		devices:  registry.New(),
		last:     last,
		writer:   transport.NewWriter(platform, opts.Transport, logger),
		opts:     opts,
		logger:   logger,
	}
}

// Hub returns the hub through which state changes are delivered.
func (s *Session) Hub() *events.Hub {
	return s.hub
}

func (s *Session) installListeners() {
	s.listenOnce.Do(func() {
		s.platform.OnAvailabilityChanged(s.handleAvailability)
		s.platform.OnDeviceFound(s.handleDevices)
		s.platform.OnConnectionStateChanged(s.handleConnection)
	})
}

// Initialize opens the adapter and starts the transport worker. When
// autoConnect is set and a last device is stored, it is connected; a
// failing auto-connect is logged and does not fail Initialize.
func (s *Session) Initialize(ctx context.Context, autoConnect bool) error {
	s.mu.RLock()
	closed := s.state == StateClosed
	s.mu.RUnlock()
	if closed {
		return ErrShutdown
	}

	s.installListeners()

	if err := s.platform.Open(ctx); err != nil {
		s.logger.WithField("error", err).Error("Failed to open BLE adapter")
		return fmt.Errorf("failed to open adapter: %w", err)
	}

	s.mu.Lock()
	s.adapterIsOpen = true
	if s.state == StateUninitialized {
		s.state = StateAdapterOpen
	}
	s.mu.Unlock()

	s.writer.Start(context.Background())
	s.logger.Info("BLE adapter ready")

	if autoConnect {
		s.autoConnect(ctx)
	}
	return nil
}

func (s *Session) autoConnect(ctx context.Context) {
	if s.last == nil {
		return
	}
	d, ok, err := s.last.Load()
	if err != nil {
		s.logger.WithField("error", err).Warn("Failed to load last connected device")
		return
	}
	if !ok {
		s.logger.Debug("No last connected device to auto-connect")
		return
	}
	if err := s.Connect(ctx, d); err != nil {
		s.logger.WithFields(logrus.Fields{
			"device_id": d.DeviceID,
			"error":     err,
		}).Warn("Auto-connect to last device failed")
	}
}

// Scan starts discovery with duplicate reports allowed. The adapter must be open.
func (s *Session) Scan(ctx context.Context) error {
	s.mu.RLock()
	open := s.adapterIsOpen
	s.mu.RUnlock()
	if !open {
		s.logger.Warn("Scan requested while the adapter is closed")
		return device.ErrAdapterClosed
	}

	if err := s.platform.StartDiscovery(ctx, true); err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	s.mu.Lock()
	s.scanning = true
	if s.state == StateAdapterOpen {
		s.state = StateScanning
	}
	s.mu.Unlock()
	s.logger.Debug("Scanning for devices")
	return nil
}

// StopScan stops discovery. It is safe to call when no scan is running.
func (s *Session) StopScan() error {
	err := s.platform.StopDiscovery()

	s.mu.Lock()
	s.scanning = false
	if s.state == StateScanning {
		s.state = StateAdapterOpen
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to stop discovery: %w", err)
	}
	return nil
}

// Connect connects to d and negotiates its write endpoint. A device without
// a writable characteristic stays connected with CanWrite false. On success
// with an endpoint, d is persisted as the last device.
func (s *Session) Connect(ctx context.Context, d device.DeviceInfo) error {
	if d.IsEmpty() {
		return fmt.Errorf("cannot connect: %w", &device.NotFoundError{Resource: "device"})
	}

	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return ErrShutdown
	case !s.adapterIsOpen:
		s.mu.Unlock()
		return device.ErrAdapterClosed
	case s.connected || s.state == StateConnecting:
		s.mu.Unlock()
		return device.ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{
		"device_id": d.DeviceID,
		"name":      d.DisplayName(),
	})
	log.Info("Connecting to device...")

	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := s.platform.Connect(cctx, d.DeviceID); err != nil {
		s.mu.Lock()
		s.state = s.idleState()
		s.mu.Unlock()
		log.WithField("error", err).Error("Failed to connect")
		return fmt.Errorf("failed to connect to %s: %w", d.DeviceID, err)
	}

	// connected is owned by handleConnection; the platform reports true
	// before Connect returns, and a drop since then leaves it false
	s.mu.Lock()
	if !s.connected {
		s.state = s.idleState()
		s.mu.Unlock()
		log.Warn("Connection lost before it was established")
		return fmt.Errorf("failed to connect to %s: %w", d.DeviceID, device.ErrNotConnected)
	}
	s.state = StateConnected
	s.connectDeviceInfo = d
	s.mu.Unlock()

	target, ok, err := Negotiate(cctx, s.platform, d.DeviceID)
	if err != nil {
		log.WithField("error", err).Error("Failed to negotiate write endpoint")
		return err
	}
	if !ok {
		log.Warn("Device has no writable characteristic")
		return nil
	}

	s.mu.Lock()
	stillConnected := s.connected
	if stillConnected {
		s.canWrite = true
		s.target = target
	}
	s.mu.Unlock()
	if !stillConnected {
		return device.ErrNotConnected
	}

	log.WithFields(logrus.Fields{
		"service":        target.ServiceUUID,
		"characteristic": target.CharacteristicUUID,
	}).Info("Device ready for printing")

	if s.last != nil {
		if err := s.last.Save(d); err != nil {
			log.WithField("error", err).Warn("Failed to persist last device")
		}
	}
	return nil
}

// Disconnect drops the current connection and forgets the persisted last device.
func (s *Session) Disconnect() error {
	if err := s.disconnect(); err != nil {
		return err
	}
	if s.last != nil {
		if err := s.last.Clear(); err != nil {
			s.logger.WithField("error", err).Warn("Failed to clear last device")
		}
	}
	return nil
}

func (s *Session) disconnect() error {
	s.mu.RLock()
	connected, d := s.connected, s.connectDeviceInfo
	s.mu.RUnlock()
	if !connected || d.IsEmpty() {
		s.logger.Debug("Disconnect requested while not connected")
		return device.ErrNotConnected
	}

	if err := s.platform.Disconnect(d.DeviceID); err != nil && !errors.Is(err, device.ErrNotConnected) {
		return fmt.Errorf("failed to disconnect from %s: %w", d.DeviceID, err)
	}

	s.mu.Lock()
	s.connected = false
	s.connectDeviceInfo = device.DeviceInfo{}
	s.invalidateWrite()
	s.state = s.idleState()
	s.mu.Unlock()

	s.logger.WithField("device_id", d.DeviceID).Info("Disconnected")
	return nil
}

// Write queues buf for the negotiated endpoint. It fails with
// device.ErrNotReady unless connected to a device with a writable characteristic.
func (s *Session) Write(buf []byte) (*transport.Job, error) {
	s.mu.RLock()
	ready, target := s.connected && s.canWrite, s.target
	s.mu.RUnlock()
	if !ready {
		s.logger.Warn("Write requested before the printer is ready")
		return nil, device.ErrNotReady
	}
	job, err := s.writer.Submit(target, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to queue write: %w", err)
	}
	return job, nil
}

// Shutdown stops scanning, disconnects without forgetting the last device,
// stops the transport and closes the adapter. Later calls are no-ops.
func (s *Session) Shutdown() error {
	s.mu.RLock()
	closed := s.state == StateClosed
	s.mu.RUnlock()
	if closed {
		return nil
	}

	if err := s.StopScan(); err != nil {
		s.logger.WithField("error", err).Warn("Failed to stop scan during shutdown")
	}
	if err := s.disconnect(); err != nil && !errors.Is(err, device.ErrNotConnected) {
		s.logger.WithField("error", err).Warn("Failed to disconnect during shutdown")
	}
	s.writer.Close()
	err := s.platform.Close()

	s.mu.Lock()
	s.adapterIsOpen = false
	s.state = StateClosed
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to close adapter: %w", err)
	}
	return nil
}

// idleState must be called with mu held.
func (s *Session) idleState() State {
	switch {
	case s.state == StateClosed:
		return StateClosed
	case !s.adapterIsOpen:
		return StateUninitialized
	case s.scanning:
		return StateScanning
	default:
		return StateAdapterOpen
	}
}

// invalidateWrite must be called with mu held.
func (s *Session) invalidateWrite() {
	s.canWrite = false
	s.target = transport.Target{}
}

func (s *Session) handleAvailability(available bool) {
	s.mu.Lock()
	s.adapterIsOpen = available
	if available {
		if s.state == StateUninitialized {
			s.state = StateAdapterOpen
		}
	} else {
		s.connected = false
		s.scanning = false
		s.invalidateWrite()
		s.state = s.idleState()
	}
	s.mu.Unlock()

	s.logger.WithField("available", available).Debug("Adapter availability changed")
	s.hub.EmitAdapterState(available)
}

// handleDevices merges the named devices of batch and emits the registry
// snapshot for every batch, including all-anonymous ones.
func (s *Session) handleDevices(batch []device.DeviceInfo) {
	named := registry.Named(batch)
	if added := s.devices.Merge(named); added > 0 {
		s.logger.WithField("new_devices", added).Debug("Discovered devices")
	}
	s.hub.EmitScanResults(s.devices.All())
}

func (s *Session) handleConnection(connected bool) {
	s.mu.Lock()
	s.connected = connected
	stopScan := connected && s.scanning
	if connected && s.state != StateConnecting && s.state != StateClosed {
		s.state = StateConnected
	}
	if !connected {
		s.invalidateWrite()
		if s.state != StateConnecting {
			s.state = s.idleState()
		}
	}
	s.mu.Unlock()

	s.logger.WithField("connected", connected).Debug("Connection state changed")
	if stopScan {
		if err := s.StopScan(); err != nil {
			s.logger.WithField("error", err).Warn("Failed to stop scan after connecting")
		}
	}
	s.hub.EmitConnectionState(connected)
}

// Devices returns the named devices discovered so far in first-sighting order.
func (s *Session) Devices() []device.DeviceInfo {
	return s.devices.All()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) AdapterIsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapterIsOpen
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// ConnectDeviceInfo returns the device of the current or last attempted connection.
func (s *Session) ConnectDeviceInfo() device.DeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectDeviceInfo
}

func (s *Session) CanWrite() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canWrite
}

// WriteTarget returns the negotiated endpoint, zero when CanWrite is false.
func (s *Session) WriteTarget() transport.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}
