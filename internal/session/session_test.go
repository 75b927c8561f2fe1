package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/bleprint/internal/cpcl"
	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/events"
	"github.com/srg/bleprint/internal/store"
	"github.com/srg/bleprint/internal/testutils"
	"github.com/srg/bleprint/internal/transport"
)

var printer = device.DeviceInfo{DeviceID: "printer-1", Name: "P21", LocalName: "P21"}

type SessionTestSuite struct {
	suite.Suite
	platform *testutils.FakePlatform
	kv       *store.MemoryKV
	last     *store.LastDevice
	session  *Session
}

func (s *SessionTestSuite) SetupTest() {
	helper := testutils.NewTestHelper(s.T())
	s.platform = testutils.NewFakePlatform().
		WithService(printer.DeviceID, "1800", true, testutils.ReadOnlyChar("2a00")).
		WithService(printer.DeviceID, "ff00", true, testutils.ReadOnlyChar("ff01"), testutils.WritableChar("ff02"))
	s.kv = store.NewMemoryKV()
	s.last = store.NewLastDevice(s.kv)
	s.session = New(s.platform, s.last, nil, Options{
		ConnectTimeout: time.Second,
		Transport:      transport.Options{ChunkInterval: time.Millisecond},
	}, helper.Logger)
}

func (s *SessionTestSuite) TearDownTest() {
	s.Require().NoError(s.session.Shutdown())
}

func (s *SessionTestSuite) initialize() {
	s.Require().NoError(s.session.Initialize(context.Background(), false))
}

func (s *SessionTestSuite) connect() {
	s.Require().NoError(s.session.Connect(context.Background(), printer))
}

func (s *SessionTestSuite) TestInitializeInstallsListenersOnce() {
	// GOAL: Re-initialization never double-registers platform listeners
	//
	// TEST SCENARIO: Initialize twice → one listener per kind, adapter open

	s.initialize()
	s.initialize()

	availability, devices, connection := s.platform.ListenerCounts()
	s.Equal(1, availability)
	s.Equal(1, devices)
	s.Equal(1, connection)
	s.True(s.session.AdapterIsOpen())
	s.Equal(StateAdapterOpen, s.session.State())
}

func (s *SessionTestSuite) TestInitializeOpenFailure() {
	s.platform.OpenErr = device.ErrBluetoothOff

	err := s.session.Initialize(context.Background(), false)
	s.ErrorIs(err, device.ErrBluetoothOff)
	s.False(s.session.AdapterIsOpen())
	s.Equal(StateUninitialized, s.session.State())
}

func (s *SessionTestSuite) TestAutoConnectFailureIsSwallowed() {
	// GOAL: A failing auto-connect does not fail Initialize
	//
	// TEST SCENARIO: stored device + platform connect error → Initialize nil, not connected

	s.Require().NoError(s.last.Save(printer))
	s.platform.ConnectErr = errors.New("peripheral unreachable")

	s.Require().NoError(s.session.Initialize(context.Background(), true))

	s.Equal([]string{printer.DeviceID}, s.platform.Connects())
	s.False(s.session.Connected())
	s.Equal(StateAdapterOpen, s.session.State())
}

func (s *SessionTestSuite) TestAutoConnectSuccess() {
	s.Require().NoError(s.last.Save(printer))

	s.Require().NoError(s.session.Initialize(context.Background(), true))

	s.True(s.session.Connected())
	s.True(s.session.CanWrite())
	s.Equal(printer.DeviceID, s.session.ConnectDeviceInfo().DeviceID)
}

func (s *SessionTestSuite) TestAutoConnectWithoutStoredDevice() {
	s.Require().NoError(s.session.Initialize(context.Background(), true))
	s.Empty(s.platform.Connects())
}

func (s *SessionTestSuite) TestScanRequiresOpenAdapter() {
	// GOAL: Scan before Initialize is rejected without touching the platform
	//
	// TEST SCENARIO: Scan on fresh session → ErrAdapterClosed, no discovery started

	err := s.session.Scan(context.Background())

	s.ErrorIs(err, device.ErrAdapterClosed)
	s.Empty(s.platform.StartDiscoveries())
	s.Equal(StateUninitialized, s.session.State())
}

func (s *SessionTestSuite) TestScanAllowsDuplicatesAndStops() {
	s.initialize()
	s.Require().NoError(s.session.Scan(context.Background()))

	s.Equal([]bool{true}, s.platform.StartDiscoveries())
	s.Equal(StateScanning, s.session.State())

	s.Require().NoError(s.session.StopScan())
	s.Require().NoError(s.session.StopScan(), "stopping an idle scan MUST succeed")
	s.Equal(StateAdapterOpen, s.session.State())
}

func (s *SessionTestSuite) TestScanResultsFilterAnonymousAndDedup() {
	var snapshots [][]device.DeviceInfo
	s.Require().True(s.session.Hub().Listen(events.ScanResultsChanged, func(e events.Event) {
		snapshots = append(snapshots, e.Devices)
	}))
	s.initialize()
	s.Require().NoError(s.session.Scan(context.Background()))

	s.platform.EmitDevices(device.DeviceInfo{DeviceID: "anon"})
	s.platform.EmitDevices(device.DeviceInfo{DeviceID: "a", Name: "A"}, device.DeviceInfo{DeviceID: "b", LocalName: "B"})
	s.platform.EmitDevices(device.DeviceInfo{DeviceID: "a", Name: "A2", RSSI: -30})

	s.Require().Len(snapshots, 3, "every batch MUST emit a snapshot")
	s.Empty(snapshots[0], "an all-anonymous batch MUST NOT add devices")
	s.Len(snapshots[1], 2)
	devices := s.session.Devices()
	s.Require().Len(devices, 2)
	s.Equal("a", devices[0].DeviceID)
	s.Equal("A2", devices[0].Name)
	s.Equal("b", devices[1].DeviceID)
}

func (s *SessionTestSuite) TestConnectNegotiatesAndPersists() {
	s.initialize()
	s.connect()

	s.True(s.session.Connected())
	s.True(s.session.CanWrite())
	s.Equal(StateConnected, s.session.State())
	s.Equal(transport.Target{DeviceID: printer.DeviceID, ServiceUUID: "ff00", CharacteristicUUID: "ff02"}, s.session.WriteTarget())

	stored, ok, err := s.last.Load()
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(printer, stored)
}

func (s *SessionTestSuite) TestConnectFailure() {
	s.initialize()
	s.platform.ConnectErr = device.ErrBluetoothOff

	err := s.session.Connect(context.Background(), printer)
	s.ErrorIs(err, device.ErrBluetoothOff)
	s.False(s.session.Connected())
	s.Equal(StateAdapterOpen, s.session.State())
}

func (s *SessionTestSuite) TestConnectLostBeforeEstablished() {
	// GOAL: A drop reported during Connect is not overwritten by a stale connected state
	//
	// TEST SCENARIO: platform reports true then false inside Connect → ErrNotConnected, not connected

	s.initialize()
	s.platform.DropOnConnect = true

	err := s.session.Connect(context.Background(), printer)
	s.ErrorIs(err, device.ErrNotConnected)
	s.False(s.session.Connected())
	s.False(s.session.CanWrite())
	s.Equal(StateAdapterOpen, s.session.State())

	_, ok, err := s.last.Load()
	s.Require().NoError(err)
	s.False(ok, "a dropped device MUST NOT be remembered")
}

func (s *SessionTestSuite) TestConnectPreconditions() {
	s.ErrorIs(s.session.Connect(context.Background(), printer), device.ErrAdapterClosed)

	s.initialize()
	s.Error(s.session.Connect(context.Background(), device.DeviceInfo{}))

	s.connect()
	s.ErrorIs(s.session.Connect(context.Background(), printer), device.ErrAlreadyConnected)
}

func (s *SessionTestSuite) TestConnectStopsScan() {
	// GOAL: A connected=true notification ends the running scan
	//
	// TEST SCENARIO: Scan then Connect → StopDiscovery issued, state connected

	s.initialize()
	s.Require().NoError(s.session.Scan(context.Background()))
	s.connect()

	s.GreaterOrEqual(s.platform.StopDiscoveries(), 1)
	s.Equal(StateConnected, s.session.State())
}

func (s *SessionTestSuite) TestConnectWithoutWritableCharacteristic() {
	ro := device.DeviceInfo{DeviceID: "sensor", Name: "Sensor"}
	s.platform.WithService(ro.DeviceID, "180f", true, testutils.ReadOnlyChar("2a19"))
	s.initialize()

	s.Require().NoError(s.session.Connect(context.Background(), ro))

	s.True(s.session.Connected(), "connection MUST be kept")
	s.False(s.session.CanWrite())

	_, err := s.session.Write([]byte("x"))
	s.ErrorIs(err, device.ErrNotReady)
	s.Empty(s.platform.Writes())

	_, ok, err := s.last.Load()
	s.Require().NoError(err)
	s.False(ok, "a device that cannot print MUST NOT be remembered")
}

func (s *SessionTestSuite) TestNegotiationErrorPropagates() {
	s.initialize()
	s.platform.ListServicesErr = errors.New("gatt timeout")

	err := s.session.Connect(context.Background(), printer)
	s.ErrorContains(err, "gatt timeout")
	s.False(s.session.CanWrite())
}

func (s *SessionTestSuite) TestWriteBeforeConnect() {
	// GOAL: Writes issued while not ready produce zero platform writes
	//
	// TEST SCENARIO: Write on open but unconnected session → ErrNotReady

	s.initialize()

	job, err := s.session.Write([]byte("! 0 200 200 200 1\r\n"))
	s.Nil(job)
	s.ErrorIs(err, device.ErrNotReady)
	s.Empty(s.platform.Writes())
}

func (s *SessionTestSuite) TestWriteLabel() {
	s.initialize()
	s.connect()

	buf, err := cpcl.New(cpcl.Options{XResolution: 200, YResolution: 200, Height: 200, PrintCount: 1}).
		Text("HELLO", 0, 10, 10).
		BarCode("0123456789", 40, 10, 60).
		Buffer()
	s.Require().NoError(err)

	job, err := s.session.Write(buf)
	s.Require().NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(job.Wait(ctx))

	writes := s.platform.Writes()
	s.Len(writes, (len(buf)+19)/20)
	for _, w := range writes {
		s.LessOrEqual(len(w.Data), 20)
		s.Equal("ff00", w.ServiceUUID)
		s.Equal("ff02", w.CharacteristicUUID)
	}
	s.Equal(buf, s.platform.WrittenBytes())
}

func (s *SessionTestSuite) TestDisconnectNotificationInvalidatesWrite() {
	var states []bool
	s.Require().True(s.session.Hub().Listen(events.ConnectionStateChanged, func(e events.Event) {
		states = append(states, e.Connected)
	}))
	s.initialize()
	s.connect()

	s.platform.EmitConnection(false)

	s.False(s.session.Connected())
	s.False(s.session.CanWrite())
	s.True(s.session.WriteTarget().IsZero())
	s.Equal(StateAdapterOpen, s.session.State())
	s.Equal([]bool{true, false}, states)

	_, err := s.session.Write([]byte("x"))
	s.ErrorIs(err, device.ErrNotReady)
}

func (s *SessionTestSuite) TestDisconnectWhenNotConnected() {
	// GOAL: Disconnect without a connection performs no platform I/O
	//
	// TEST SCENARIO: Disconnect on open session → ErrNotConnected, no disconnect call

	s.initialize()

	s.ErrorIs(s.session.Disconnect(), device.ErrNotConnected)
	s.Empty(s.platform.Disconnects())
}

func (s *SessionTestSuite) TestDisconnectForgetsLastDevice() {
	s.initialize()
	s.connect()

	s.Require().NoError(s.session.Disconnect())

	s.Equal([]string{printer.DeviceID}, s.platform.Disconnects())
	s.True(s.session.ConnectDeviceInfo().IsEmpty())
	s.False(s.session.Connected())
	_, ok, err := s.last.Load()
	s.Require().NoError(err)
	s.False(ok)
}

func (s *SessionTestSuite) TestShutdownKeepsLastDevice() {
	var adapter []bool
	s.Require().True(s.session.Hub().Listen(events.AdapterStateChanged, func(e events.Event) {
		adapter = append(adapter, e.Available)
	}))
	s.initialize()
	s.connect()

	s.Require().NoError(s.session.Shutdown())

	s.Equal(StateClosed, s.session.State())
	s.False(s.session.AdapterIsOpen())
	s.Equal(1, s.platform.Closes())
	s.Equal([]bool{true, false}, adapter)
	_, ok, err := s.last.Load()
	s.Require().NoError(err)
	s.True(ok, "shutdown MUST keep the last device for auto-connect")

	s.ErrorIs(s.session.Initialize(context.Background(), false), ErrShutdown)
	s.NoError(s.session.Shutdown())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
