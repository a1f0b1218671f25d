package radio

import (
	"fmt"
)

// State is the power/authorization state of the local radio.
type State int

const (
	StateUnknown State = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

var stateNames = map[State]string{
	StateUnknown:      "unknown",
	StateResetting:    "resetting",
	StateUnsupported:  "unsupported",
	StateUnauthorized: "unauthorized",
	StatePoweredOff:   "powered_off",
	StatePoweredOn:    "powered_on",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Enabled reports whether scanning and connecting are permitted.
func (s State) Enabled() bool {
	return s == StatePoweredOn
}

// Link addresses one connection attempt to a peripheral.
// Epoch is assigned by the caller on every connect and is never reused for the same peripheral.
type Link struct {
	Peripheral string
	Epoch      uint64
}

func (l Link) String() string {
	return fmt.Sprintf("%s#%d", l.Peripheral, l.Epoch)
}

// Attribute is a discovered GATT attribute (service, characteristic or descriptor).
// ID is unique within one peripheral connection and is what requests refer back to;
// UUID is the attribute type as reported by the peripheral (normalized).
type Attribute struct {
	ID   string
	UUID string
}

// Advertisement is the part of a received advertising report the session cares about.
type Advertisement struct {
	ID          string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string
}

// Radio is the platform Bluetooth stack.
type Radio interface {
	// SetDelegate registers the callback sink. Must be called before any other method.
	SetDelegate(d Delegate)

	// QueryPowerState asks the radio to report its power state through PowerStateChanged.
	QueryPowerState()

	// Scan starts (true) or stops (false) discovery of all advertising devices.
	Scan(start bool)

	Connect(link Link)
	Disconnect(link Link)

	DiscoverServices(link Link)
	DiscoverCharacteristics(link Link, serviceID string)
	DiscoverDescriptors(link Link, characteristicID string)

	// ReadValue reads a characteristic or a descriptor, addressed by attribute id.
	ReadValue(link Link, attributeID string)

	// Close releases the radio. No callbacks are delivered after Close returns.
	Close() error
}

// Delegate receives radio callbacks. Implementations must not block for long:
// the radio may deliver callbacks from its own goroutines.
type Delegate interface {
	PowerStateChanged(state State)
	Discovered(adv Advertisement)

	Connected(link Link)
	ConnectFailed(link Link, err error)
	// Disconnected reports the end of a connection. err is nil when the
	// disconnect was requested through Radio.Disconnect.
	Disconnected(link Link, err error)

	ServicesDiscovered(link Link, services []Attribute, err error)
	CharacteristicsDiscovered(link Link, serviceID string, chars []Attribute, err error)
	DescriptorsDiscovered(link Link, characteristicID string, descs []Attribute, err error)
	ValueUpdated(link Link, attributeID string, value []byte, err error)
}
