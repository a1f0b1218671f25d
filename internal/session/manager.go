package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/eventbus"
	"github.com/srg/blescan/internal/gatt"
	"github.com/srg/blescan/internal/groutine"
	"github.com/srg/blescan/internal/queue"
	"github.com/srg/blescan/internal/radio"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Manager is the single owner of a radio session.
//
// Create it with New once at startup, hand its Events() to presentation code and
// Close it at shutdown. Every exported method is safe for concurrent use.
type Manager struct {
	radio  radio.Radio
	bus    *eventbus.Bus
	logger *logrus.Logger
	now    func() time.Time

	inbox *queue.Unbounded[func()]
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error

	// Owned by the loop goroutine.
	state       radio.State
	scanning    bool
	peripherals *orderedmap.OrderedMap[string, *peripheral]
	lastEpoch   uint64
}

// New registers the manager as the radio's delegate and starts its event loop.
func New(r radio.Radio, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}

	m := &Manager{
		radio:       r,
		bus:         eventbus.New(logger),
		logger:      logger,
		now:         time.Now,
		inbox:       queue.New[func()](),
		done:        make(chan struct{}),
		state:       radio.StateUnknown,
		peripherals: orderedmap.New[string, *peripheral](),
	}

	r.SetDelegate(&delegate{m: m})
	groutine.Go(context.Background(), "session-loop", m.loop)
	return m
}

// Events returns the bus every session notification is published on.
func (m *Manager) Events() eventbus.Subscriber {
	return m.bus
}

// Close stops the event loop, releases the radio and closes the bus once
// subscribers have received everything already published.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.inbox.Close()
		<-m.done
		m.closeErr = m.radio.Close()
		m.bus.Close()
	})
	return m.closeErr
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	m.logger.WithField("goroutine", groutine.Name(ctx)).Debug("Session loop started")

	for {
		fn, ok := m.inbox.Pop()
		if !ok {
			m.logger.Debug("Session loop stopped")
			return
		}
		fn()
	}
}

// post queues fn for the loop. Work posted after Close is dropped.
func (m *Manager) post(fn func()) {
	if !m.inbox.Push(fn) {
		m.logger.Debug("Session closed, dropping request")
	}
}

// query runs fn on the loop and waits for it. Returns false if the session is closed.
func (m *Manager) query(fn func()) bool {
	finished := make(chan struct{})
	if !m.inbox.Push(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-m.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// StartScan starts discovering advertising peripherals.
// Ignored unless the radio is powered on and no scan is running.
func (m *Manager) StartScan() {
	m.post(m.startScan)
}

// StopScan stops a running scan. Ignored when no scan is running.
func (m *Manager) StopScan() {
	m.post(m.stopScan)
}

// Connect starts connecting to a previously discovered peripheral.
// Ignored when the peripheral is unknown, already connected or connecting, or the radio is not powered on.
func (m *Manager) Connect(id string) {
	m.post(func() { m.connect(id) })
}

// Disconnect asks the radio to drop a connected or connecting peripheral.
// The state only changes once the radio reports the disconnect.
func (m *Manager) Disconnect(id string) {
	m.post(func() { m.disconnect(id) })
}

// RefreshPowerState asks the radio to report its current power state.
func (m *Manager) RefreshPowerState() {
	m.post(m.radio.QueryPowerState)
}

func (m *Manager) publish(e eventbus.Event) {
	m.bus.Publish(e)
}

func (m *Manager) linkLogger(link radio.Link) *logrus.Entry {
	return m.logger.WithFields(logrus.Fields{
		"peripheral": link.Peripheral,
		"epoch":      link.Epoch,
	})
}

// snapshots

// Peripherals returns every peripheral seen this session, in discovery order.
func (m *Manager) Peripherals() []PeripheralSummary {
	var out []PeripheralSummary
	m.query(func() {
		out = make([]PeripheralSummary, 0, m.peripherals.Len())
		for pair := m.peripherals.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, pair.Value.summary())
		}
	})
	return out
}

// Peripheral returns the summary of one peripheral.
func (m *Manager) Peripheral(id string) (PeripheralSummary, bool) {
	var (
		out   PeripheralSummary
		found bool
	)
	m.query(func() {
		if p, ok := m.peripherals.Get(id); ok {
			out, found = p.summary(), true
		}
	})
	return out, found
}

// Tree returns a copy of the attribute tree of a peripheral. The tree is empty
// until the peripheral is connected and its services are discovered.
func (m *Manager) Tree(id string) (*gatt.Tree, bool) {
	var out *gatt.Tree
	m.query(func() {
		if p, ok := m.peripherals.Get(id); ok {
			out = p.tree.Clone()
		}
	})
	return out, out != nil
}

// RadioState returns the last power state reported by the radio.
func (m *Manager) RadioState() radio.State {
	state := radio.StateUnknown
	m.query(func() { state = m.state })
	return state
}

// Scanning reports whether a scan is running.
func (m *Manager) Scanning() bool {
	var scanning bool
	m.query(func() { scanning = m.scanning })
	return scanning
}
