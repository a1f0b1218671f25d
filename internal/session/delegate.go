package session

import "github.com/srg/blescan/internal/radio"

// delegate receives radio callbacks, on whatever goroutine the radio uses,
// and queues them for the loop.
type delegate struct {
	m *Manager
}

var _ radio.Delegate = (*delegate)(nil)

func (d *delegate) PowerStateChanged(state radio.State) {
	d.m.post(func() { d.m.powerStateChanged(state) })
}

func (d *delegate) Discovered(adv radio.Advertisement) {
	d.m.post(func() { d.m.discovered(adv) })
}

func (d *delegate) Connected(link radio.Link) {
	d.m.post(func() { d.m.connected(link) })
}

func (d *delegate) ConnectFailed(link radio.Link, err error) {
	d.m.post(func() { d.m.connectFailed(link, err) })
}

func (d *delegate) Disconnected(link radio.Link, err error) {
	d.m.post(func() { d.m.disconnected(link, err) })
}

func (d *delegate) ServicesDiscovered(link radio.Link, services []radio.Attribute, err error) {
	d.m.post(func() { d.m.servicesDiscovered(link, services, err) })
}

func (d *delegate) CharacteristicsDiscovered(link radio.Link, serviceID string, chars []radio.Attribute, err error) {
	d.m.post(func() { d.m.characteristicsDiscovered(link, serviceID, chars, err) })
}

func (d *delegate) DescriptorsDiscovered(link radio.Link, characteristicID string, descs []radio.Attribute, err error) {
	d.m.post(func() { d.m.descriptorsDiscovered(link, characteristicID, descs, err) })
}

func (d *delegate) ValueUpdated(link radio.Link, attributeID string, value []byte, err error) {
	d.m.post(func() { d.m.valueUpdated(link, attributeID, value, err) })
}
