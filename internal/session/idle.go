package session

import (
	"context"
	"fmt"
	"time"

	"github.com/srg/blescan/internal/eventbus"
	"github.com/srg/blescan/internal/radio"
)

// AwaitDiscoveryIdle blocks until no discovery or value event was published for
// the peripheral during quiet. The discovery cascade has no completion signal,
// so quiescence is the only way to know the tree is as complete as it gets.
//
// Returns radio.ErrNotConnected if the peripheral is neither connecting nor
// connected, the disconnect/connect failure error if the connection ends while
// waiting, or ctx.Err().
func (m *Manager) AwaitDiscoveryIdle(ctx context.Context, id string, quiet time.Duration) error {
	activity := make(chan struct{}, 1)
	ended := make(chan error, 1)

	unsubscribe := m.bus.SubscribeAll(func(e eventbus.Event) {
		if e.PeripheralID() != id {
			return
		}
		switch ev := e.(type) {
		case eventbus.Disconnected:
			signalErr(ended, connectionEnded(ev.Err))
		case eventbus.ConnectFailed:
			signalErr(ended, connectionEnded(ev.Err))
		default:
			if e.Topic().IsDiscovery() || e.Topic() == eventbus.TopicConnected {
				select {
				case activity <- struct{}{}:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	// Subscribed first, so a disconnect racing with this check is still observed.
	p, ok := m.Peripheral(id)
	if !ok {
		return fmt.Errorf("peripheral %s: %w", id, radio.ErrUnknownPeripheral)
	}
	if p.State == Disconnected {
		return fmt.Errorf("peripheral %s: %w", id, radio.ErrNotConnected)
	}

	timer := time.NewTimer(quiet)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-ended:
			return err
		case <-activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiet)
		case <-timer.C:
			return nil
		}
	}
}

func connectionEnded(err error) error {
	if err == nil {
		return radio.ErrNotConnected
	}
	return err
}

func signalErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
