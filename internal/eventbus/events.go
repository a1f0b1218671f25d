// Package eventbus republishes session state changes as typed events.
//
// Topics form a closed set and every topic has exactly one event type, so a
// subscriber can switch on the concrete type without looking anything up by key.
package eventbus

import (
	"fmt"

	"github.com/srg/blescan/internal/radio"
)

// Topic identifies the kind of event.
type Topic int

const (
	TopicHardwareEnabled Topic = iota + 1
	TopicHardwareDisabled
	TopicScanStarted
	TopicScanStopped
	TopicPeripheralDiscovered
	TopicConnected
	TopicConnectFailed
	TopicDisconnected
	TopicServicesDiscovered
	TopicCharacteristicsDiscovered
	TopicDescriptorsDiscovered
	TopicValueUpdated
)

var topicNames = map[Topic]string{
	TopicHardwareEnabled:           "hardware.enabled",
	TopicHardwareDisabled:          "hardware.disabled",
	TopicScanStarted:               "scan.started",
	TopicScanStopped:               "scan.stopped",
	TopicPeripheralDiscovered:      "peripheral.discovered",
	TopicConnected:                 "peripheral.connected",
	TopicConnectFailed:             "peripheral.connect_failed",
	TopicDisconnected:              "peripheral.disconnected",
	TopicServicesDiscovered:        "gatt.services_discovered",
	TopicCharacteristicsDiscovered: "gatt.characteristics_discovered",
	TopicDescriptorsDiscovered:     "gatt.descriptors_discovered",
	TopicValueUpdated:              "gatt.value_updated",
}

func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return fmt.Sprintf("topic(%d)", int(t))
}

// Topics lists every topic in declaration order.
func Topics() []Topic {
	out := make([]Topic, 0, len(topicNames))
	for t := TopicHardwareEnabled; t <= TopicValueUpdated; t++ {
		out = append(out, t)
	}
	return out
}

// IsDiscovery reports whether events on the topic are part of the GATT discovery cascade.
func (t Topic) IsDiscovery() bool {
	switch t {
	case TopicServicesDiscovered, TopicCharacteristicsDiscovered, TopicDescriptorsDiscovered, TopicValueUpdated:
		return true
	}
	return false
}

// Event is implemented only by the event types of this package.
type Event interface {
	Topic() Topic
	// PeripheralID is "" for radio-wide events.
	PeripheralID() string

	sealed()
}

type HardwareEnabled struct {
	State radio.State
}

type HardwareDisabled struct {
	State radio.State
}

type ScanStarted struct{}

type ScanStopped struct{}

type PeripheralDiscovered struct {
	Peripheral string
	Name       string
	RSSI       int
	// New is true the first time the peripheral is seen in this session.
	New bool
}

type Connected struct {
	Peripheral string
}

type ConnectFailed struct {
	Peripheral string
	Err        error
}

type Disconnected struct {
	Peripheral string
	// Err is nil for a user-initiated disconnect.
	Err error
}

type ServicesDiscovered struct {
	Peripheral string
	Services   int
}

type CharacteristicsDiscovered struct {
	Peripheral string
	ServiceID  string
	Added      int
}

type DescriptorsDiscovered struct {
	Peripheral       string
	CharacteristicID string
	Added            int
}

type ValueUpdated struct {
	Peripheral  string
	AttributeID string
	Value       []byte
}

func (HardwareEnabled) Topic() Topic           { return TopicHardwareEnabled }
func (HardwareDisabled) Topic() Topic          { return TopicHardwareDisabled }
func (ScanStarted) Topic() Topic               { return TopicScanStarted }
func (ScanStopped) Topic() Topic               { return TopicScanStopped }
func (PeripheralDiscovered) Topic() Topic      { return TopicPeripheralDiscovered }
func (Connected) Topic() Topic                 { return TopicConnected }
func (ConnectFailed) Topic() Topic             { return TopicConnectFailed }
func (Disconnected) Topic() Topic              { return TopicDisconnected }
func (ServicesDiscovered) Topic() Topic        { return TopicServicesDiscovered }
func (CharacteristicsDiscovered) Topic() Topic { return TopicCharacteristicsDiscovered }
func (DescriptorsDiscovered) Topic() Topic     { return TopicDescriptorsDiscovered }
func (ValueUpdated) Topic() Topic              { return TopicValueUpdated }

func (HardwareEnabled) PeripheralID() string             { return "" }
func (HardwareDisabled) PeripheralID() string            { return "" }
func (ScanStarted) PeripheralID() string                 { return "" }
func (ScanStopped) PeripheralID() string                 { return "" }
func (e PeripheralDiscovered) PeripheralID() string      { return e.Peripheral }
func (e Connected) PeripheralID() string                 { return e.Peripheral }
func (e ConnectFailed) PeripheralID() string             { return e.Peripheral }
func (e Disconnected) PeripheralID() string              { return e.Peripheral }
func (e ServicesDiscovered) PeripheralID() string        { return e.Peripheral }
func (e CharacteristicsDiscovered) PeripheralID() string { return e.Peripheral }
func (e DescriptorsDiscovered) PeripheralID() string     { return e.Peripheral }
func (e ValueUpdated) PeripheralID() string              { return e.Peripheral }

func (HardwareEnabled) sealed()           {}
func (HardwareDisabled) sealed()          {}
func (ScanStarted) sealed()               {}
func (ScanStopped) sealed()               {}
func (PeripheralDiscovered) sealed()      {}
func (Connected) sealed()                 {}
func (ConnectFailed) sealed()             {}
func (Disconnected) sealed()              {}
func (ServicesDiscovered) sealed()        {}
func (CharacteristicsDiscovered) sealed() {}
func (DescriptorsDiscovered) sealed()     {}
func (ValueUpdated) sealed()              {}
