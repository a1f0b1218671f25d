package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/queue"
	"github.com/srg/blescan/internal/radio"
)

// liveLink is one connection attempt, from dial to disconnect.
type liveLink struct {
	radio.Link
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	client    Client // nil while dialing
	requested bool   // disconnect was asked for

	work *queue.Unbounded[func(Client)]

	// attrs maps attribute ids to *ble.Service, *ble.Characteristic or
	// *ble.Descriptor. Owned by the worker goroutine.
	attrs map[string]any
}

func newLiveLink(parent context.Context, link radio.Link, logger *logrus.Logger) *liveLink {
	ctx, cancel := context.WithCancel(parent)
	return &liveLink{
		Link: link,
		logger: logger.WithFields(logrus.Fields{
			"peripheral": link.Peripheral,
			"epoch":      link.Epoch,
		}),
		ctx:    ctx,
		cancel: cancel,
		work:   queue.New[func(Client)](),
		attrs:  make(map[string]any),
	}
}

// attach records the dialed client. Returns false if a disconnect was requested meanwhile.
func (l *liveLink) attach(c Client) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.requested || l.ctx.Err() != nil {
		return false
	}
	l.client = c
	return true
}

func (l *liveLink) disconnectRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requested
}

// enqueue schedules a request on the link worker. Fails while dialing and once the link is gone.
func (l *liveLink) enqueue(fn func(Client)) bool {
	l.mu.Lock()
	connected := l.client != nil
	l.mu.Unlock()
	return connected && l.work.Push(fn)
}

// requestDisconnect marks the disconnect as user initiated and returns the
// client to cancel, or nil if the link is still dialing (the dial is cancelled).
func (l *liveLink) requestDisconnect() Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requested = true
	if l.client == nil {
		l.cancel()
	}
	return l.client
}

// close tears the link down synchronously, used on adapter shutdown.
func (l *liveLink) close(requested bool) {
	l.mu.Lock()
	if requested {
		l.requested = true
	}
	client := l.client
	l.mu.Unlock()

	if client != nil {
		if err := client.CancelConnection(); err != nil {
			l.logger.WithError(NormalizeError(err)).Debug("Cancel connection failed")
		}
	}
	l.cancel()
}

func (l *liveLink) runWorker(ctx context.Context) {
	for {
		fn, ok := l.work.Pop()
		if !ok {
			return
		}
		l.mu.Lock()
		client := l.client
		l.mu.Unlock()
		fn(client)
	}
}

func (a *Adapter) Connect(link radio.Link) {
	l := newLiveLink(a.ctx, link, a.logger)
	if prev, ok := a.links.Get(link.Peripheral); ok {
		prev.logger.Warn("Replacing a link that was never reported closed")
		prev.close(true)
	}
	a.links.Set(link.Peripheral, l)

	a.spawn("ble-dial", func(context.Context) {
		a.dial(l)
	})
}

func (a *Adapter) dial(l *liveLink) {
	dev, err := a.device()
	if err != nil {
		a.forget(l)
		if l.disconnectRequested() {
			a.emit(func(d radio.Delegate) { d.Disconnected(l.Link, nil) })
			return
		}
		l.logger.WithError(err).Warn("Cannot connect")
		a.emit(func(d radio.Delegate) { d.ConnectFailed(l.Link, err) })
		a.reportPowerLoss(err)
		return
	}
	if l.ctx.Err() != nil {
		a.forget(l)
		l.logger.Debug("Dial cancelled")
		a.emit(func(d radio.Delegate) { d.Disconnected(l.Link, nil) })
		return
	}

	l.logger.Info("Dialing BLE device...")
	client, err := dev.Dial(l.ctx, ble.NewAddr(l.Peripheral))
	if err != nil {
		a.forget(l)
		if l.disconnectRequested() || isCancellation(err) {
			l.logger.Debug("Dial cancelled")
			a.emit(func(d radio.Delegate) { d.Disconnected(l.Link, nil) })
			return
		}
		err = NormalizeError(err)
		l.logger.WithError(err).Warn("Failed to dial BLE device")
		a.emit(func(d radio.Delegate) { d.ConnectFailed(l.Link, err) })
		return
	}

	if !l.attach(client) {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			l.logger.WithError(NormalizeError(cancelErr)).Debug("Cancel connection failed")
		}
		a.forget(l)
		a.emit(func(d radio.Delegate) { d.Disconnected(l.Link, nil) })
		return
	}

	l.logger.Info("BLE device connected")
	a.emit(func(d radio.Delegate) { d.Connected(l.Link) })

	a.spawn("ble-link-worker", l.runWorker)
	a.spawn("ble-link-monitor", func(context.Context) {
		select {
		case <-client.Disconnected():
		case <-l.ctx.Done():
		}
		a.finish(l)
	})
}

// finish reports the end of an established link.
func (a *Adapter) finish(l *liveLink) {
	a.forget(l)
	l.work.Close()
	l.cancel()

	var err error
	if !l.disconnectRequested() {
		err = ErrConnectionLost
		l.logger.Warn("BLE device reported disconnection")
	} else {
		l.logger.Info("BLE device disconnected")
	}
	a.emit(func(d radio.Delegate) { d.Disconnected(l.Link, err) })
}

// forget drops l from the link table unless a newer link replaced it.
func (a *Adapter) forget(l *liveLink) {
	if cur, ok := a.links.Get(l.Peripheral); ok && cur == l {
		a.links.Del(l.Peripheral)
	}
}

func (a *Adapter) Disconnect(link radio.Link) {
	l, ok := a.links.Get(link.Peripheral)
	if !ok || l.Epoch != link.Epoch {
		a.logger.WithField("peripheral", link.Peripheral).Debug("Disconnect for a link that is already gone")
		a.emit(func(d radio.Delegate) { d.Disconnected(link, nil) })
		return
	}

	client := l.requestDisconnect()
	if client == nil {
		return
	}
	a.spawn("ble-disconnect", func(context.Context) {
		if err := client.CancelConnection(); err != nil {
			l.logger.WithError(NormalizeError(err)).Warn("BLE device disconnected with errors")
		}
		l.cancel()
	})
}
