// Package goble implements radio.Radio on top of github.com/go-ble/ble.
//
// go-ble exposes a blocking API. The adapter runs every request on a named
// goroutine and reports the outcome through the radio.Delegate, so callers
// never block on the radio. Requests for one connection are executed in order
// on that connection's worker.
package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/bledb"
	"github.com/srg/blescan/internal/groutine"
	"github.com/srg/blescan/internal/radio"
)

// Options configure an Adapter.
type Options struct {
	// AllowDuplicates reports every advertisement instead of one per device.
	AllowDuplicates bool
}

// Adapter is a radio.Radio backed by the platform go-ble device.
type Adapter struct {
	logger *logrus.Logger
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// emitMu guards delegate and closed: callbacks hold it shared, Close exclusively.
	emitMu   sync.RWMutex
	delegate radio.Delegate
	closed   bool

	openMu sync.Mutex // serializes opening the platform device
	devMu  sync.Mutex // guards dev and scan
	dev    Device
	scan   *scanRun

	links *hashmap.Map[string, *liveLink]
}

var _ radio.Radio = (*Adapter)(nil)

// New creates an adapter. The platform device is opened lazily, on an adapter
// goroutine, by the first QueryPowerState, Scan or Connect.
func New(logger *logrus.Logger, opts Options) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		logger: logger,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		links:  hashmap.New[string, *liveLink](),
	}
}

func (a *Adapter) SetDelegate(d radio.Delegate) {
	a.emitMu.Lock()
	defer a.emitMu.Unlock()
	a.delegate = d
}

// emit hands a callback to the delegate unless the adapter is closed.
func (a *Adapter) emit(fn func(d radio.Delegate)) {
	a.emitMu.RLock()
	defer a.emitMu.RUnlock()
	if a.closed || a.delegate == nil {
		return
	}
	fn(a.delegate)
}

type scanRun struct {
	cancel context.CancelFunc
}

// spawn runs fn on a named goroutine tracked by Close. Nothing is started once
// the adapter is closed.
func (a *Adapter) spawn(name string, fn func(ctx context.Context)) {
	a.emitMu.RLock()
	defer a.emitMu.RUnlock()
	if a.closed {
		return
	}
	a.wg.Add(1)
	groutine.Go(a.ctx, name, func(ctx context.Context) {
		defer a.wg.Done()
		fn(ctx)
	})
}

// device opens the platform device on first use. Opening may block for a long
// time, so it is only called from adapter goroutines.
func (a *Adapter) device() (Device, error) {
	a.openMu.Lock()
	defer a.openMu.Unlock()

	a.devMu.Lock()
	dev := a.dev
	a.devMu.Unlock()
	if dev != nil {
		return dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	a.devMu.Lock()
	a.dev = dev
	a.devMu.Unlock()
	return dev, nil
}

// QueryPowerState reports PoweredOn once the platform device opens, otherwise
// the state implied by the open error.
func (a *Adapter) QueryPowerState() {
	a.spawn("ble-power-state", func(ctx context.Context) {
		_, err := a.device()
		state := radio.StateForError(err)
		if err != nil {
			a.logger.WithError(err).WithField("state", state).Warn("BLE device unavailable")
		}
		a.emit(func(d radio.Delegate) { d.PowerStateChanged(state) })
	})
}

func (a *Adapter) Scan(start bool) {
	if !start {
		a.stopScan()
		return
	}

	a.devMu.Lock()
	if a.scan != nil {
		a.devMu.Unlock()
		return
	}
	scanCtx, cancel := context.WithCancel(a.ctx)
	run := &scanRun{cancel: cancel}
	a.scan = run
	a.devMu.Unlock()

	a.spawn("ble-scan", func(context.Context) {
		defer a.endScan(run)

		dev, err := a.device()
		if err != nil {
			a.logger.WithError(err).Warn("Cannot scan")
			a.reportPowerLoss(err)
			return
		}
		if scanCtx.Err() != nil {
			a.logger.Debug("Scan stopped before it started")
			return
		}

		a.logger.WithField("allow_duplicates", a.opts.AllowDuplicates).Debug("Scanning...")
		err = dev.Scan(scanCtx, a.opts.AllowDuplicates, func(adv ble.Advertisement) {
			a.emit(func(d radio.Delegate) { d.Discovered(toAdvertisement(adv)) })
		})
		if err != nil && !isCancellation(err) && scanCtx.Err() == nil {
			err = NormalizeError(err)
			a.logger.WithError(err).Warn("Scan stopped unexpectedly")
			a.reportPowerLoss(err)
			return
		}
		a.logger.Debug("Scan finished")
	})
}

// endScan releases the scan slot held by run, unless a newer scan took it.
func (a *Adapter) endScan(run *scanRun) {
	a.devMu.Lock()
	if a.scan == run {
		a.scan = nil
	}
	a.devMu.Unlock()
	run.cancel()
}

func (a *Adapter) stopScan() {
	a.devMu.Lock()
	defer a.devMu.Unlock()
	if a.scan != nil {
		a.scan.cancel()
		a.scan = nil
	}
}

// reportPowerLoss turns a device error that implies a power state into a PowerStateChanged callback.
func (a *Adapter) reportPowerLoss(err error) {
	if state := radio.StateForError(err); state != radio.StateUnknown {
		a.emit(func(d radio.Delegate) { d.PowerStateChanged(state) })
	}
}

// Close cancels every scan, dial and connection, stops the device and waits for
// all adapter goroutines. No callback is delivered once Close returns.
func (a *Adapter) Close() error {
	a.emitMu.Lock()
	if a.closed {
		a.emitMu.Unlock()
		return nil
	}
	a.closed = true
	a.emitMu.Unlock()

	a.stopScan()
	a.links.Range(func(_ string, l *liveLink) bool {
		l.close(true)
		return true
	})
	a.cancel()
	a.wg.Wait()

	a.devMu.Lock()
	dev := a.dev
	a.dev = nil
	a.devMu.Unlock()
	if dev == nil {
		return nil
	}
	if err := dev.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		return NormalizeError(err)
	}
	return nil
}

func toAdvertisement(adv ble.Advertisement) radio.Advertisement {
	services := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		if s := bledb.NormalizeUUID(u.String()); s != "" {
			services = append(services, s)
		}
	}
	return radio.Advertisement{
		ID:          adv.Addr().String(),
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    services,
	}
}
