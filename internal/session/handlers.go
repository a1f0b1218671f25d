package session

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/eventbus"
	"github.com/srg/blescan/internal/gatt"
	"github.com/srg/blescan/internal/radio"
)

// Everything in this file runs on the loop goroutine.

func (m *Manager) startScan() {
	if !m.state.Enabled() {
		m.logger.WithField("state", m.state).WithError(radio.ErrRadioUnavailable).Debug("Ignoring scan start")
		return
	}
	if m.scanning {
		return
	}
	m.radio.Scan(true)
	m.scanning = true
	m.logger.Debug("Scan started")
	m.publish(eventbus.ScanStarted{})
}

func (m *Manager) stopScan() {
	if !m.scanning {
		return
	}
	m.radio.Scan(false)
	m.scanning = false
	m.logger.Debug("Scan stopped")
	m.publish(eventbus.ScanStopped{})
}

func (m *Manager) connect(id string) {
	log := m.logger.WithField("peripheral", id)

	p, ok := m.peripherals.Get(id)
	if !ok {
		log.WithError(radio.ErrUnknownPeripheral).Warn("Ignoring connect")
		return
	}
	if !m.state.Enabled() {
		log.WithField("state", m.state).WithError(radio.ErrRadioUnavailable).Warn("Ignoring connect")
		return
	}
	if p.state != Disconnected {
		log.WithField("conn_state", p.state).Debug("Ignoring connect")
		return
	}

	m.lastEpoch++
	p.epoch = m.lastEpoch
	p.state = Connecting
	p.userDisconnect = false
	p.lastErr = nil
	p.tree.Reset()

	m.linkLogger(p.link()).Info("Connecting")
	m.radio.Connect(p.link())
}

func (m *Manager) disconnect(id string) {
	p, ok := m.peripherals.Get(id)
	if !ok {
		m.logger.WithField("peripheral", id).WithError(radio.ErrUnknownPeripheral).Warn("Ignoring disconnect")
		return
	}
	if p.state == Disconnected {
		m.logger.WithField("peripheral", id).Debug("Ignoring disconnect, not connected")
		return
	}
	p.userDisconnect = true
	m.linkLogger(p.link()).Info("Disconnecting")
	m.radio.Disconnect(p.link())
}

func (m *Manager) powerStateChanged(state radio.State) {
	prev := m.state
	m.state = state
	m.logger.WithFields(logrus.Fields{"from": prev, "to": state}).Info("Radio power state changed")

	if !state.Enabled() {
		// The radio stops scanning by itself when it goes down.
		m.scanning = false
		m.publish(eventbus.HardwareDisabled{State: state})
		return
	}
	m.publish(eventbus.HardwareEnabled{State: state})
}

func (m *Manager) discovered(adv radio.Advertisement) {
	p, known := m.peripherals.Get(adv.ID)
	if !known {
		p = newPeripheral(adv.ID)
		m.peripherals.Set(adv.ID, p)
		m.logger.WithFields(logrus.Fields{"peripheral": adv.ID, "name": adv.Name, "rssi": adv.RSSI}).Debug("Peripheral discovered")
	}
	if adv.Name != "" {
		p.name = adv.Name
	}
	if len(adv.Services) > 0 {
		p.services = append([]string(nil), adv.Services...)
	}
	p.rssi = adv.RSSI
	p.connectable = adv.Connectable
	p.lastSeen = m.now()

	m.publish(eventbus.PeripheralDiscovered{
		Peripheral: p.id,
		Name:       p.name,
		RSSI:       p.rssi,
		New:        !known,
	})
}

// current returns the peripheral a callback is addressed to, provided the link
// belongs to the latest connection attempt and the peripheral is in one of the
// accepted states. Anything else is a stale callback.
func (m *Manager) current(link radio.Link, what string, accepted ...ConnState) (*peripheral, bool) {
	p, ok := m.peripherals.Get(link.Peripheral)
	if !ok {
		m.linkLogger(link).WithError(radio.ErrUnknownPeripheral).Debugf("Dropping %s callback", what)
		return nil, false
	}
	if p.epoch != link.Epoch {
		m.linkLogger(link).WithField("current_epoch", p.epoch).WithError(radio.ErrStaleCallback).Debugf("Dropping %s callback", what)
		return nil, false
	}
	for _, s := range accepted {
		if p.state == s {
			return p, true
		}
	}
	m.linkLogger(link).WithField("conn_state", p.state).WithError(radio.ErrStaleCallback).Debugf("Dropping %s callback", what)
	return nil, false
}

func (m *Manager) connected(link radio.Link) {
	p, ok := m.current(link, "connected", Connecting)
	if !ok {
		return
	}
	p.state = Connected
	p.tree.Reset()
	m.linkLogger(link).Info("Connected")

	m.radio.DiscoverServices(link)
	m.publish(eventbus.Connected{Peripheral: p.id})
}

func (m *Manager) connectFailed(link radio.Link, cause error) {
	p, ok := m.current(link, "connect failed", Connecting)
	if !ok {
		return
	}
	err := radio.ErrConnectionFailed
	if cause != nil {
		err = fmt.Errorf("%w: %w", radio.ErrConnectionFailed, cause)
	}
	p.state = Disconnected
	p.lastErr = err
	p.tree.Reset()
	m.linkLogger(link).WithError(err).Warn("Connection failed")

	m.publish(eventbus.ConnectFailed{Peripheral: p.id, Err: err})
}

func (m *Manager) disconnected(link radio.Link, cause error) {
	p, ok := m.current(link, "disconnected", Connecting, Connected)
	if !ok {
		return
	}

	var err error
	switch {
	case p.userDisconnect:
		if cause != nil {
			m.linkLogger(link).WithError(cause).Debug("Radio reported an error for a requested disconnect")
		}
	case cause != nil:
		err = fmt.Errorf("%w: %w", radio.ErrUnexpectedDisconnect, cause)
	default:
		err = radio.ErrUnexpectedDisconnect
	}

	p.state = Disconnected
	p.lastErr = err
	p.userDisconnect = false
	p.tree.Reset()

	log := m.linkLogger(link)
	if err != nil {
		log.WithError(err).Warn("Disconnected")
	} else {
		log.Info("Disconnected")
	}
	m.publish(eventbus.Disconnected{Peripheral: p.id, Err: err})
}

func (m *Manager) servicesDiscovered(link radio.Link, services []radio.Attribute, cause error) {
	p, ok := m.current(link, "services", Connected)
	if !ok {
		return
	}
	log := m.linkLogger(link)
	if cause != nil {
		log.WithError(cause).Warn("Service discovery failed")
		return
	}

	added := p.tree.AddServices(services)
	log.WithFields(logrus.Fields{"reported": len(services), "added": added}).Debug("Services discovered")

	for _, s := range services {
		m.radio.DiscoverCharacteristics(link, s.ID)
	}
	m.publish(eventbus.ServicesDiscovered{Peripheral: p.id, Services: p.tree.ChildCount(gatt.Root)})
}

func (m *Manager) characteristicsDiscovered(link radio.Link, serviceID string, chars []radio.Attribute, cause error) {
	p, ok := m.current(link, "characteristics", Connected)
	if !ok {
		return
	}
	log := m.linkLogger(link).WithField("service", serviceID)
	if cause != nil {
		log.WithError(cause).Warn("Characteristic discovery failed")
		return
	}

	added, err := p.tree.AppendCharacteristics(serviceID, chars)
	if err != nil {
		log.WithError(err).Warn("Dropping characteristics")
		return
	}
	log.WithField("added", added).Debug("Characteristics discovered")

	for _, c := range chars {
		m.radio.DiscoverDescriptors(link, c.ID)
		m.radio.ReadValue(link, c.ID)
	}
	m.publish(eventbus.CharacteristicsDiscovered{Peripheral: p.id, ServiceID: serviceID, Added: added})
}

func (m *Manager) descriptorsDiscovered(link radio.Link, characteristicID string, descs []radio.Attribute, cause error) {
	p, ok := m.current(link, "descriptors", Connected)
	if !ok {
		return
	}
	log := m.linkLogger(link).WithField("characteristic", characteristicID)
	if cause != nil {
		log.WithError(cause).Warn("Descriptor discovery failed")
		return
	}

	added, err := p.tree.AppendDescriptors(characteristicID, descs)
	if err != nil {
		log.WithError(err).Warn("Dropping descriptors")
		return
	}
	log.WithField("added", added).Debug("Descriptors discovered")

	for _, d := range descs {
		m.radio.ReadValue(link, d.ID)
	}
	m.publish(eventbus.DescriptorsDiscovered{Peripheral: p.id, CharacteristicID: characteristicID, Added: added})
}

func (m *Manager) valueUpdated(link radio.Link, attributeID string, value []byte, cause error) {
	p, ok := m.current(link, "value", Connected)
	if !ok {
		return
	}
	log := m.linkLogger(link).WithField("attr", attributeID)
	if cause != nil {
		log.WithError(cause).Warn("Read failed")
		return
	}
	if err := p.tree.SetValue(attributeID, value); err != nil {
		log.WithError(err).Warn("Dropping value")
		return
	}
	log.WithField("len", len(value)).Debug("Value updated")

	m.publish(eventbus.ValueUpdated{
		Peripheral:  p.id,
		AttributeID: attributeID,
		Value:       append([]byte{}, value...),
	})
}
