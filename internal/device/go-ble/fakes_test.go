package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
)

type fakeAdv struct {
	ble.Advertisement
	addr     string
	name     string
	rssi     int
	manuf    []byte
	services []ble.UUID
	svcData  []ble.ServiceData
}

func (a *fakeAdv) LocalName() string              { return a.name }
func (a *fakeAdv) ManufacturerData() []byte       { return a.manuf }
func (a *fakeAdv) ServiceData() []ble.ServiceData { return a.svcData }
func (a *fakeAdv) Services() []ble.UUID           { return a.services }
func (a *fakeAdv) RSSI() int                      { return a.rssi }
func (a *fakeAdv) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }

type writeCall struct {
	uuid  string
	data  []byte
	noRsp bool
}

type fakeClient struct {
	ble.Client
	mu           sync.Mutex
	services     []*ble.Service
	disconnected chan struct{}
	cancelled    int
	writes       []writeCall
}

func newFakeClient(services ...*ble.Service) *fakeClient {
	return &fakeClient{services: services, disconnected: make(chan struct{})}
}

func (c *fakeClient) DiscoverServices([]ble.UUID) ([]*ble.Service, error) {
	return c.services, nil
}

func (c *fakeClient) DiscoverCharacteristics(_ []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	return s.Characteristics, nil
}

func (c *fakeClient) WriteCharacteristic(ch *ble.Characteristic, v []byte, noRsp bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, writeCall{uuid: ch.UUID.String(), data: append([]byte(nil), v...), noRsp: noRsp})
	return nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled++
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

type fakeDevice struct {
	ble.Device
	mu      sync.Mutex
	adverts []ble.Advertisement
	client  *fakeClient
	dialErr error
	dialed  []string
	stopped int
}

func (d *fakeDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	for _, a := range d.adverts {
		h(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Dial(_ context.Context, a ble.Addr) (ble.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, a.String())
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.client, nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
	return nil
}
