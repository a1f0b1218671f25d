package goble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blescan/internal/bledb"
	"github.com/srg/blescan/internal/radio"
)

// ErrNotReadable is reported for a characteristic without the read property.
var ErrNotReadable = errors.New("attribute is not readable")

// submit runs fn on the link worker, or calls fail when the link is not connected.
func (a *Adapter) submit(link radio.Link, fail func(err error), fn func(l *liveLink, c Client)) {
	l, ok := a.links.Get(link.Peripheral)
	if ok && l.Epoch == link.Epoch && l.enqueue(func(c Client) { fn(l, c) }) {
		return
	}
	fail(fmt.Errorf("%s: %w", link, radio.ErrNotConnected))
}

func (a *Adapter) DiscoverServices(link radio.Link) {
	report := func(attrs []radio.Attribute, err error) {
		a.emit(func(d radio.Delegate) { d.ServicesDiscovered(link, attrs, err) })
	}
	a.submit(link, func(err error) { report(nil, err) }, func(l *liveLink, c Client) {
		services, err := c.DiscoverServices(nil)
		if err != nil {
			report(nil, NormalizeError(err))
			return
		}
		uuids := make([]ble.UUID, len(services))
		for i, s := range services {
			uuids[i] = s.UUID
		}
		attrs := assignIDs("", uuids)
		for i, s := range services {
			l.attrs[attrs[i].ID] = s
		}
		l.logger.WithField("services", len(attrs)).Debug("Services discovered")
		report(attrs, nil)
	})
}

func (a *Adapter) DiscoverCharacteristics(link radio.Link, serviceID string) {
	report := func(attrs []radio.Attribute, err error) {
		a.emit(func(d radio.Delegate) { d.CharacteristicsDiscovered(link, serviceID, attrs, err) })
	}
	a.submit(link, func(err error) { report(nil, err) }, func(l *liveLink, c Client) {
		svc, ok := l.attrs[serviceID].(*ble.Service)
		if !ok {
			report(nil, fmt.Errorf("service %q: %w", serviceID, radio.ErrNotFound))
			return
		}
		chars, err := c.DiscoverCharacteristics(nil, svc)
		if err != nil {
			report(nil, NormalizeError(err))
			return
		}
		uuids := make([]ble.UUID, len(chars))
		for i, ch := range chars {
			uuids[i] = ch.UUID
		}
		attrs := assignIDs(serviceID, uuids)
		for i, ch := range chars {
			l.attrs[attrs[i].ID] = ch
		}
		report(attrs, nil)
	})
}

func (a *Adapter) DiscoverDescriptors(link radio.Link, characteristicID string) {
	report := func(attrs []radio.Attribute, err error) {
		a.emit(func(d radio.Delegate) { d.DescriptorsDiscovered(link, characteristicID, attrs, err) })
	}
	a.submit(link, func(err error) { report(nil, err) }, func(l *liveLink, c Client) {
		char, ok := l.attrs[characteristicID].(*ble.Characteristic)
		if !ok {
			report(nil, fmt.Errorf("characteristic %q: %w", characteristicID, radio.ErrNotFound))
			return
		}
		descs, err := c.DiscoverDescriptors(nil, char)
		if err != nil {
			report(nil, NormalizeError(err))
			return
		}
		uuids := make([]ble.UUID, len(descs))
		for i, d := range descs {
			uuids[i] = d.UUID
		}
		attrs := assignIDs(characteristicID, uuids)
		for i, d := range descs {
			l.attrs[attrs[i].ID] = d
		}
		report(attrs, nil)
	})
}

func (a *Adapter) ReadValue(link radio.Link, attributeID string) {
	report := func(value []byte, err error) {
		a.emit(func(d radio.Delegate) { d.ValueUpdated(link, attributeID, value, err) })
	}
	a.submit(link, func(err error) { report(nil, err) }, func(l *liveLink, c Client) {
		var (
			value []byte
			err   error
		)
		switch attr := l.attrs[attributeID].(type) {
		case *ble.Characteristic:
			if attr.Property&ble.CharRead == 0 {
				report(nil, fmt.Errorf("characteristic %q: %w", attributeID, ErrNotReadable))
				return
			}
			value, err = c.ReadCharacteristic(attr)
		case *ble.Descriptor:
			value, err = c.ReadDescriptor(attr)
		default:
			report(nil, fmt.Errorf("attribute %q: %w", attributeID, radio.ErrNotFound))
			return
		}
		if err != nil {
			report(nil, NormalizeError(err))
			return
		}
		report(value, nil)
	})
}

// assignIDs derives path-shaped attribute ids ("180d/2a37/2902") from the parent
// id and the normalized UUID. Repeated UUIDs under one parent get a "#n" suffix
// by position, so rediscovering the same parent yields the same ids.
func assignIDs(parentID string, uuids []ble.UUID) []radio.Attribute {
	seen := make(map[string]int, len(uuids))
	out := make([]radio.Attribute, len(uuids))
	for i, u := range uuids {
		norm := normalizeUUID(u)
		seen[norm]++

		id := norm
		if n := seen[norm]; n > 1 {
			id += "#" + strconv.Itoa(n)
		}
		if parentID != "" {
			id = parentID + "/" + id
		}
		out[i] = radio.Attribute{ID: id, UUID: norm}
	}
	return out
}

func normalizeUUID(u ble.UUID) string {
	raw := u.String()
	if norm := bledb.NormalizeUUID(raw); norm != "" {
		return norm
	}
	return strings.ToLower(raw)
}
