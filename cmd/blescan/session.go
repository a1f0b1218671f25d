package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/eventbus"
	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/internal/radio/goble"
	"github.com/srg/blescan/internal/session"
	"github.com/srg/blescan/pkg/config"
)

// newRadio is replaced in tests.
var newRadio = func(cfg *config.Config, logger *logrus.Logger) radio.Radio {
	return goble.New(logger, goble.Options{AllowDuplicates: cfg.AllowDuplicates})
}

// openSession starts a session and waits until the radio is powered on.
func openSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*session.Manager, error) {
	mgr := session.New(newRadio(cfg, logger), logger)
	if err := waitPoweredOn(ctx, mgr); err != nil {
		_ = mgr.Close()
		return nil, err
	}
	return mgr, nil
}

func waitPoweredOn(ctx context.Context, mgr *session.Manager) error {
	states := make(chan radio.State, 1)
	report := func(s radio.State) {
		select {
		case states <- s:
		default:
		}
	}
	unsubscribe := mgr.Events().SubscribeAll(func(e eventbus.Event) {
		switch ev := e.(type) {
		case eventbus.HardwareEnabled:
			report(ev.State)
		case eventbus.HardwareDisabled:
			report(ev.State)
		}
	})
	defer unsubscribe()

	mgr.RefreshPowerState()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s := <-states:
		return radio.ErrorForState(s)
	}
}

// findPeripheral scans until a peripheral whose id matches (case-insensitively) advertises.
func findPeripheral(ctx context.Context, mgr *session.Manager, id string, timeout time.Duration) (session.PeripheralSummary, error) {
	found := make(chan string, 1)
	unsubscribe := mgr.Events().Subscribe(eventbus.TopicPeripheralDiscovered, func(e eventbus.Event) {
		if strings.EqualFold(e.PeripheralID(), id) {
			select {
			case found <- e.PeripheralID():
			default:
			}
		}
	})
	defer unsubscribe()

	mgr.StartScan()
	defer mgr.StopScan()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return session.PeripheralSummary{}, ctx.Err()
	case <-timer.C:
		return session.PeripheralSummary{}, fmt.Errorf("%w: %s did not advertise within %s", ErrPeripheralNotFound, id, timeout)
	case actual := <-found:
		p, _ := mgr.Peripheral(actual)
		return p, nil
	}
}

// connect connects to a discovered peripheral and waits for the outcome.
func connect(ctx context.Context, mgr *session.Manager, id string) error {
	result := make(chan error, 1)
	unsubscribe := mgr.Events().SubscribeAll(func(e eventbus.Event) {
		if e.PeripheralID() != id {
			return
		}
		var err error
		switch ev := e.(type) {
		case eventbus.Connected:
		case eventbus.ConnectFailed:
			err = ev.Err
		case eventbus.Disconnected:
			err = radio.ErrConnectionFailed
			if ev.Err != nil {
				err = fmt.Errorf("%w: %w", radio.ErrConnectionFailed, ev.Err)
			}
		default:
			return
		}
		select {
		case result <- err:
		default:
		}
	})
	defer unsubscribe()

	mgr.Connect(id)
	select {
	case <-ctx.Done():
		mgr.Disconnect(id)
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// disconnect asks for a disconnect and waits at most timeout for the radio to confirm it.
func disconnect(mgr *session.Manager, id string, timeout time.Duration, logger *logrus.Logger) {
	done := make(chan struct{})
	unsubscribe := mgr.Events().Subscribe(eventbus.TopicDisconnected, func(e eventbus.Event) {
		if e.PeripheralID() == id {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer unsubscribe()

	if p, ok := mgr.Peripheral(id); !ok || p.State == session.Disconnected {
		return
	}
	mgr.Disconnect(id)
	select {
	case <-done:
	case <-time.After(timeout):
		logger.WithField("peripheral", id).Warn("Timed out waiting for disconnect")
	}
}
