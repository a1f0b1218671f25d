package session

import (
	"fmt"
	"time"

	"github.com/srg/blescan/internal/gatt"
	"github.com/srg/blescan/internal/radio"
)

// ConnState is the connection state of a peripheral.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("conn_state(%d)", int(s))
	}
}

// PeripheralSummary is a point-in-time copy of what the session knows about a peripheral.
type PeripheralSummary struct {
	ID          string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string // advertised service UUIDs
	State       ConnState
	// LastError is the reason of the last failed connect or unexpected disconnect.
	LastError error
	LastSeen  time.Time
}

// DisplayName returns the advertised name, or the id when the peripheral never advertised one.
func (s PeripheralSummary) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

type peripheral struct {
	id          string
	name        string
	rssi        int
	connectable bool
	services    []string
	lastSeen    time.Time

	state          ConnState
	epoch          uint64
	userDisconnect bool
	lastErr        error
	tree           *gatt.Tree
}

func newPeripheral(id string) *peripheral {
	return &peripheral{id: id, tree: gatt.New()}
}

func (p *peripheral) link() radio.Link {
	return radio.Link{Peripheral: p.id, Epoch: p.epoch}
}

func (p *peripheral) summary() PeripheralSummary {
	return PeripheralSummary{
		ID:          p.id,
		Name:        p.name,
		RSSI:        p.rssi,
		Connectable: p.connectable,
		Services:    append([]string(nil), p.services...),
		State:       p.state,
		LastError:   p.lastErr,
		LastSeen:    p.lastSeen,
	}
}
