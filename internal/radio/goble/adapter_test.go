package goble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdvertisement struct {
	ble.Advertisement
	addr     string
	name     string
	rssi     int
	services []ble.UUID
}

func (a fakeAdvertisement) Addr() ble.Addr       { return ble.NewAddr(a.addr) }
func (a fakeAdvertisement) LocalName() string    { return a.name }
func (a fakeAdvertisement) RSSI() int            { return a.rssi }
func (a fakeAdvertisement) Connectable() bool    { return true }
func (a fakeAdvertisement) Services() []ble.UUID { return a.services }

type fakeClient struct {
	ble.Client

	services     []*ble.Service
	readErr      error
	disconnected chan struct{}
	dropOnce     sync.Once
	cancelCalls  atomic.Int32
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

func (c *fakeClient) DiscoverDescriptors(_ []ble.UUID, ch *ble.Characteristic) ([]*ble.Descriptor, error) {
	return ch.Descriptors, nil
}

func (c *fakeClient) ReadCharacteristic(ch *ble.Characteristic) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return ch.Value, nil
}

func (c *fakeClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	return d.Value, nil
}

func (c *fakeClient) CancelConnection() error {
	c.cancelCalls.Add(1)
	c.drop()
	return nil
}

func (c *fakeClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

// drop simulates the peripheral going away.
func (c *fakeClient) drop() {
	c.dropOnce.Do(func() { close(c.disconnected) })
}

type fakeDevice struct {
	advs    []ble.Advertisement
	client  *fakeClient
	dialErr error
	// holdDial blocks Dial until its context is cancelled.
	holdDial bool

	scanning atomic.Bool
	stopped  atomic.Bool
}

func (d *fakeDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	d.scanning.Store(true)
	defer d.scanning.Store(false)
	for _, adv := range d.advs {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Dial(ctx context.Context, _ ble.Addr) (ble.Client, error) {
	if d.holdDial {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.client, nil
}

func (d *fakeDevice) Stop() error {
	d.stopped.Store(true)
	return nil
}

type call struct {
	method string
	link   radio.Link
	parent string
	attrs  []radio.Attribute
	value  []byte
	err    error
	state  radio.State
	adv    radio.Advertisement
}

type recordingDelegate struct {
	mu    sync.Mutex
	calls []call
}

func (r *recordingDelegate) add(c call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recordingDelegate) PowerStateChanged(s radio.State) {
	r.add(call{method: "PowerStateChanged", state: s})
}
func (r *recordingDelegate) Discovered(adv radio.Advertisement) {
	r.add(call{method: "Discovered", adv: adv})
}
func (r *recordingDelegate) Connected(l radio.Link) { r.add(call{method: "Connected", link: l}) }
func (r *recordingDelegate) ConnectFailed(l radio.Link, err error) {
	r.add(call{method: "ConnectFailed", link: l, err: err})
}
func (r *recordingDelegate) Disconnected(l radio.Link, err error) {
	r.add(call{method: "Disconnected", link: l, err: err})
}
func (r *recordingDelegate) ServicesDiscovered(l radio.Link, attrs []radio.Attribute, err error) {
	r.add(call{method: "ServicesDiscovered", link: l, attrs: attrs, err: err})
}
func (r *recordingDelegate) CharacteristicsDiscovered(l radio.Link, parent string, attrs []radio.Attribute, err error) {
	r.add(call{method: "CharacteristicsDiscovered", link: l, parent: parent, attrs: attrs, err: err})
}
func (r *recordingDelegate) DescriptorsDiscovered(l radio.Link, parent string, attrs []radio.Attribute, err error) {
	r.add(call{method: "DescriptorsDiscovered", link: l, parent: parent, attrs: attrs, err: err})
}
func (r *recordingDelegate) ValueUpdated(l radio.Link, id string, value []byte, err error) {
	r.add(call{method: "ValueUpdated", link: l, parent: id, value: value, err: err})
}

func (r *recordingDelegate) count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

// await waits for the n-th call of method and returns it.
func (r *recordingDelegate) await(t *testing.T, method string, n int) call {
	t.Helper()
	var got call
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		seen := 0
		for _, c := range r.calls {
			if c.method == method {
				seen++
				if seen == n {
					got = c
					return true
				}
			}
		}
		return false
	}, 2*time.Second, time.Millisecond, "no %s call #%d", method, n)
	return got
}

func useDevice(t *testing.T, dev Device, err error) {
	t.Helper()
	prev := DeviceFactory
	DeviceFactory = func() (Device, error) { return dev, err }
	t.Cleanup(func() { DeviceFactory = prev })
}

func newTestAdapter(t *testing.T) (*Adapter, *recordingDelegate) {
	helper := testutils.NewTestHelper(t)
	a := New(helper.Logger, Options{})
	d := &recordingDelegate{}
	a.SetDelegate(d)
	t.Cleanup(func() { _ = a.Close() })
	return a, d
}

func heartRateProfile() *ble.Service {
	cccd := &ble.Descriptor{UUID: ble.UUID16(0x2902), Value: []byte{0x01, 0x00}}
	measurement := &ble.Characteristic{
		UUID:        ble.UUID16(0x2a37),
		Property:    ble.CharNotify,
		Descriptors: []*ble.Descriptor{cccd},
	}
	location := &ble.Characteristic{
		UUID:     ble.UUID16(0x2a38),
		Property: ble.CharRead,
		Value:    []byte{0x01},
	}
	return &ble.Service{
		UUID:            ble.UUID16(0x180d),
		Characteristics: []*ble.Characteristic{measurement, location},
	}
}

func TestAdapter_QueryPowerState(t *testing.T) {
	t.Run("device opens", func(t *testing.T) {
		useDevice(t, &fakeDevice{}, nil)
		a, d := newTestAdapter(t)
		a.QueryPowerState()
		assert.Equal(t, radio.StatePoweredOn, d.await(t, "PowerStateChanged", 1).state)
	})

	t.Run("bluetooth off", func(t *testing.T) {
		useDevice(t, nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))
		a, d := newTestAdapter(t)
		a.QueryPowerState()
		assert.Equal(t, radio.StatePoweredOff, d.await(t, "PowerStateChanged", 1).state)
	})
}

func TestAdapter_Scan(t *testing.T) {
	dev := &fakeDevice{advs: []ble.Advertisement{
		fakeAdvertisement{addr: "aa:bb:cc:dd:ee:ff", name: "HRM", rssi: -42, services: []ble.UUID{ble.UUID16(0x180d)}},
	}}
	useDevice(t, dev, nil)
	a, d := newTestAdapter(t)

	a.Scan(true)
	a.Scan(true)
	adv := d.await(t, "Discovered", 1).adv
	assert.Equal(t, radio.Advertisement{
		ID:          "aa:bb:cc:dd:ee:ff",
		Name:        "HRM",
		RSSI:        -42,
		Connectable: true,
		Services:    []string{"180d"},
	}, adv)
	assert.Equal(t, 1, d.count("Discovered"), "a second Scan(true) MUST NOT start another scan")

	a.Scan(false)
	require.Eventually(t, func() bool { return !dev.scanning.Load() }, time.Second, time.Millisecond)
}

func TestAdapter_DiscoveryCascade(t *testing.T) {
	battery := &ble.Service{UUID: ble.UUID16(0x180f)}
	client := newFakeClient(heartRateProfile(), heartRateProfile(), battery)
	useDevice(t, &fakeDevice{client: client}, nil)
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 7}

	a.Connect(link)
	assert.Equal(t, link, d.await(t, "Connected", 1).link)

	a.DiscoverServices(link)
	services := d.await(t, "ServicesDiscovered", 1)
	require.NoError(t, services.err)
	assert.Equal(t, []radio.Attribute{
		{ID: "180d", UUID: "180d"},
		{ID: "180d#2", UUID: "180d"},
		{ID: "180f", UUID: "180f"},
	}, services.attrs)

	a.DiscoverCharacteristics(link, "180d#2")
	chars := d.await(t, "CharacteristicsDiscovered", 1)
	require.NoError(t, chars.err)
	assert.Equal(t, "180d#2", chars.parent)
	assert.Equal(t, []radio.Attribute{
		{ID: "180d#2/2a37", UUID: "2a37"},
		{ID: "180d#2/2a38", UUID: "2a38"},
	}, chars.attrs)

	a.DiscoverDescriptors(link, "180d#2/2a37")
	descs := d.await(t, "DescriptorsDiscovered", 1)
	require.NoError(t, descs.err)
	assert.Equal(t, []radio.Attribute{{ID: "180d#2/2a37/2902", UUID: "2902"}}, descs.attrs)

	// Requests on one link complete in the order they were issued.
	a.ReadValue(link, "180d#2/2a38")
	a.ReadValue(link, "180d#2/2a37")
	a.ReadValue(link, "180d#2/2a37/2902")
	a.ReadValue(link, "180d")

	v := d.await(t, "ValueUpdated", 1)
	assert.Equal(t, "180d#2/2a38", v.parent)
	assert.NoError(t, v.err)
	assert.Equal(t, []byte{0x01}, v.value)

	v = d.await(t, "ValueUpdated", 2)
	assert.ErrorIs(t, v.err, ErrNotReadable)

	v = d.await(t, "ValueUpdated", 3)
	assert.NoError(t, v.err)
	assert.Equal(t, []byte{0x01, 0x00}, v.value)

	v = d.await(t, "ValueUpdated", 4)
	assert.ErrorIs(t, v.err, radio.ErrNotFound, "services have no value")

	a.DiscoverCharacteristics(link, "ffff")
	assert.ErrorIs(t, d.await(t, "CharacteristicsDiscovered", 2).err, radio.ErrNotFound)
}

func TestAdapter_RequestsRequireCurrentLink(t *testing.T) {
	useDevice(t, &fakeDevice{client: newFakeClient(heartRateProfile())}, nil)
	a, d := newTestAdapter(t)

	a.DiscoverServices(radio.Link{Peripheral: "aa:bb", Epoch: 1})
	assert.ErrorIs(t, d.await(t, "ServicesDiscovered", 1).err, radio.ErrNotConnected)

	link := radio.Link{Peripheral: "aa:bb", Epoch: 2}
	a.Connect(link)
	d.await(t, "Connected", 1)

	a.ReadValue(radio.Link{Peripheral: "aa:bb", Epoch: 1}, "180d/2a38")
	v := d.await(t, "ValueUpdated", 1)
	assert.ErrorIs(t, v.err, radio.ErrNotConnected)
	assert.Equal(t, uint64(1), v.link.Epoch, "the callback MUST echo the link it was issued for")
}

func TestAdapter_ConnectFailure(t *testing.T) {
	useDevice(t, &fakeDevice{dialErr: errors.New("bluetooth is turned off")}, nil)
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	a.Connect(link)
	failed := d.await(t, "ConnectFailed", 1)
	assert.Equal(t, link, failed.link)
	assert.ErrorIs(t, failed.err, radio.ErrBluetoothOff)
}

func TestAdapter_DisconnectWhileDialing(t *testing.T) {
	useDevice(t, &fakeDevice{holdDial: true}, nil)
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	a.Connect(link)
	a.Disconnect(link)

	disconnected := d.await(t, "Disconnected", 1)
	assert.Equal(t, link, disconnected.link)
	assert.NoError(t, disconnected.err)
	assert.Equal(t, 0, d.count("ConnectFailed"))
}

func TestAdapter_Disconnect(t *testing.T) {
	client := newFakeClient(heartRateProfile())
	useDevice(t, &fakeDevice{client: client}, nil)
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	a.Connect(link)
	d.await(t, "Connected", 1)
	a.Disconnect(link)

	disconnected := d.await(t, "Disconnected", 1)
	assert.NoError(t, disconnected.err, "a requested disconnect MUST report no error")
	assert.Equal(t, int32(1), client.cancelCalls.Load())

	a.DiscoverServices(link)
	assert.ErrorIs(t, d.await(t, "ServicesDiscovered", 1).err, radio.ErrNotConnected)
}

func TestAdapter_ConnectionLost(t *testing.T) {
	client := newFakeClient(heartRateProfile())
	useDevice(t, &fakeDevice{client: client}, nil)
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	a.Connect(link)
	d.await(t, "Connected", 1)
	client.drop()

	disconnected := d.await(t, "Disconnected", 1)
	assert.Equal(t, link, disconnected.link)
	assert.ErrorIs(t, disconnected.err, ErrConnectionLost)
}

func TestAdapter_Close(t *testing.T) {
	client := newFakeClient(heartRateProfile())
	dev := &fakeDevice{client: client}
	useDevice(t, dev, nil)
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	a.Connect(link)
	d.await(t, "Connected", 1)
	a.Scan(true)
	require.Eventually(t, dev.scanning.Load, time.Second, time.Millisecond)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	assert.True(t, dev.stopped.Load())
	assert.False(t, dev.scanning.Load())
	assert.Equal(t, int32(1), client.cancelCalls.Load())
	assert.Equal(t, 0, d.count("Disconnected"), "no callback MUST be delivered during or after Close")

	d.mu.Lock()
	before := len(d.calls)
	d.mu.Unlock()
	a.QueryPowerState()
	a.DiscoverServices(link)
	time.Sleep(20 * time.Millisecond)
	d.mu.Lock()
	assert.Len(t, d.calls, before)
	d.mu.Unlock()
}

func TestAssignIDs(t *testing.T) {
	custom := ble.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	got := assignIDs("180d", []ble.UUID{ble.UUID16(0x2a37), custom, ble.UUID16(0x2a37), ble.UUID16(0x2a37)})
	assert.Equal(t, []radio.Attribute{
		{ID: "180d/2a37", UUID: "2a37"},
		{ID: "180d/6e400001b5a3f393e0a9e50e24dcca9e", UUID: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{ID: "180d/2a37#2", UUID: "2a37"},
		{ID: "180d/2a37#3", UUID: "2a37"},
	}, got)
	assert.Empty(t, assignIDs("", nil))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"darwin powered off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), radio.ErrBluetoothOff},
		{"turned off", errors.New("Bluetooth is turned off"), radio.ErrBluetoothOff},
		{"unauthorized", errors.New("central manager has invalid state: have=3 want=5"), radio.ErrUnauthorized},
		{"linux permission", errors.New("can't init hci: operation not permitted"), radio.ErrUnauthorized},
		{"unsupported", errors.New("can't init hci: no such device"), radio.ErrUnsupported},
		{"not connected", errors.New("device not connected"), radio.ErrNotConnected},
		{"already normalized", radio.ErrUnsupported, radio.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "the original error MUST stay in the chain")
		})
	}

	other := errors.New("att: attribute not long")
	assert.Same(t, other, NormalizeError(other))
}

func TestAdapter_RequestsDoNotWaitForDeviceOpen(t *testing.T) {
	release := make(chan struct{})
	dev := &fakeDevice{holdDial: true}
	prev := DeviceFactory
	DeviceFactory = func() (Device, error) {
		<-release
		return dev, nil
	}
	t.Cleanup(func() { DeviceFactory = prev })

	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		a.QueryPowerState()
		a.Scan(true)
		a.Connect(link)
		a.Scan(false)
		a.Disconnect(link)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		close(release)
		require.FailNow(t, "requests MUST return while the device is still opening")
	}

	close(release)
	assert.Equal(t, radio.StatePoweredOn, d.await(t, "PowerStateChanged", 1).state)
	disconnected := d.await(t, "Disconnected", 1)
	assert.Equal(t, link, disconnected.link)
	assert.NoError(t, disconnected.err, "a dial cancelled before the device opened is a requested disconnect")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, dev.scanning.Load(), "a scan stopped before the device opened MUST NOT start")
	assert.Equal(t, 0, d.count("ConnectFailed"))
}

func TestAdapter_ConnectWithUnavailableDevice(t *testing.T) {
	useDevice(t, nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))
	a, d := newTestAdapter(t)
	link := radio.Link{Peripheral: "aa:bb", Epoch: 1}

	a.Connect(link)
	failed := d.await(t, "ConnectFailed", 1)
	assert.Equal(t, link, failed.link)
	assert.ErrorIs(t, failed.err, radio.ErrBluetoothOff)
	assert.Equal(t, radio.StatePoweredOff, d.await(t, "PowerStateChanged", 1).state)
}
