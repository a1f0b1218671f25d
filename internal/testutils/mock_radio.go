package testutils

import (
	"sync"

	"github.com/srg/blescan/internal/radio"
	"github.com/stretchr/testify/mock"
)

// MockRadio is a testify mock of radio.Radio. Every request is recorded and
// accepted; tests drive outcomes by calling the registered delegate directly,
// the same way a real radio would from its own goroutines.
//
//	r := testutils.NewMockRadio()
//	mgr := session.New(r, logger)
//	...
//	r.Delegate().Connected(link)
//	r.AssertCalled(t, "DiscoverServices", link)
type MockRadio struct {
	mock.Mock

	mu       sync.Mutex
	delegate radio.Delegate
	counts   map[string]int
}

// NewMockRadio returns a mock that accepts any request.
func NewMockRadio() *MockRadio {
	m := &MockRadio{counts: make(map[string]int)}
	m.On("QueryPowerState").Maybe()
	m.On("Scan", mock.Anything).Maybe()
	m.On("Connect", mock.Anything).Maybe()
	m.On("Disconnect", mock.Anything).Maybe()
	m.On("DiscoverServices", mock.Anything).Maybe()
	m.On("DiscoverCharacteristics", mock.Anything, mock.Anything).Maybe()
	m.On("DiscoverDescriptors", mock.Anything, mock.Anything).Maybe()
	m.On("ReadValue", mock.Anything, mock.Anything).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

func (m *MockRadio) SetDelegate(d radio.Delegate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = d
}

// Delegate returns the delegate registered by the code under test.
func (m *MockRadio) Delegate() radio.Delegate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delegate
}

func (m *MockRadio) QueryPowerState() {
	m.record("QueryPowerState")
	m.Called()
}

func (m *MockRadio) Scan(start bool) {
	m.record("Scan")
	m.Called(start)
}

func (m *MockRadio) Connect(link radio.Link) {
	m.record("Connect")
	m.Called(link)
}

func (m *MockRadio) Disconnect(link radio.Link) {
	m.record("Disconnect")
	m.Called(link)
}

func (m *MockRadio) DiscoverServices(link radio.Link) {
	m.record("DiscoverServices")
	m.Called(link)
}

func (m *MockRadio) DiscoverCharacteristics(link radio.Link, serviceID string) {
	m.record("DiscoverCharacteristics")
	m.Called(link, serviceID)
}

func (m *MockRadio) DiscoverDescriptors(link radio.Link, characteristicID string) {
	m.record("DiscoverDescriptors")
	m.Called(link, characteristicID)
}

func (m *MockRadio) ReadValue(link radio.Link, attributeID string) {
	m.record("ReadValue")
	m.Called(link, attributeID)
}

func (m *MockRadio) Close() error {
	m.record("Close")
	args := m.Called()
	return args.Error(0)
}

func (m *MockRadio) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
}

// CallCount returns how many times method was invoked, whatever the arguments.
func (m *MockRadio) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}
