package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Handler receives events on the subscriber's own goroutine.
type Handler func(Event)

// Subscriber is the read side of the bus handed to presentation code.
type Subscriber interface {
	// Subscribe registers handler for one topic and returns the function that unsubscribes it.
	Subscribe(topic Topic, handler Handler) (unsubscribe func())
	// SubscribeAll registers handler for every topic.
	SubscribeAll(handler Handler) (unsubscribe func())
}

// Bus is an in-process publish/subscribe channel.
//
// Every subscription owns an unbounded FIFO mailbox drained by a dedicated
// goroutine: Publish never blocks on a handler, each subscriber sees events in
// publish order, and a handler that triggers further publications only appends
// to mailboxes instead of re-entering delivery.
type Bus struct {
	publishMu sync.Mutex // serializes fan-out so every mailbox sees the same order

	mu     sync.RWMutex
	typed  map[Topic][]*mailbox
	all    []*mailbox
	nextID atomic.Uint64

	logger *logrus.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

var _ Subscriber = (*Bus)(nil)

// New creates an event bus.
func New(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		typed:  make(map[Topic][]*mailbox),
		logger: logger,
	}
}

// Publish enqueues event for every subscriber of its topic and every all-topics subscriber.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(event Event) {
	if event == nil || b.closed.Load() {
		return
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	typed := b.typed[event.Topic()]
	all := b.all
	b.mu.RUnlock()

	for _, mb := range typed {
		mb.push(event)
	}
	for _, mb := range all {
		mb.push(event)
	}
}

func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	mb := b.register(topic.String(), handler, func(mb *mailbox) {
		b.typed[topic] = appendCopy(b.typed[topic], mb)
	})

	return func() {
		b.mu.Lock()
		b.typed[topic] = removeCopy(b.typed[topic], mb.id)
		b.mu.Unlock()
		mb.stop(false)
	}
}

func (b *Bus) SubscribeAll(handler Handler) func() {
	mb := b.register("all", handler, func(mb *mailbox) {
		b.all = appendCopy(b.all, mb)
	})

	return func() {
		b.mu.Lock()
		b.all = removeCopy(b.all, mb.id)
		b.mu.Unlock()
		mb.stop(false)
	}
}

// register adds a mailbox under b.mu and starts its goroutine. On a closed bus
// the mailbox is returned already stopped and is never delivered to.
func (b *Bus) register(label string, handler Handler, add func(*mailbox)) *mailbox {
	mb := newMailbox(b.nextID.Add(1), handler)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		mb.stop(false)
		return mb
	}
	add(mb)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		mb.run(b.logger, label)
	}()
	return mb
}

// Close stops accepting events, delivers what is already queued and waits for
// every handler to return. Must not be called from a handler.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}

	b.publishMu.Lock()
	b.mu.Lock()
	boxes := make([]*mailbox, 0, len(b.all))
	boxes = append(boxes, b.all...)
	for _, subs := range b.typed {
		boxes = append(boxes, subs...)
	}
	b.typed = make(map[Topic][]*mailbox)
	b.all = nil
	b.mu.Unlock()
	b.publishMu.Unlock()

	for _, mb := range boxes {
		mb.stop(true)
	}
	b.wg.Wait()
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.all)
	for _, subs := range b.typed {
		n += len(subs)
	}
	return n
}

// appendCopy never mutates the slice a concurrent Publish may be iterating.
func appendCopy(subs []*mailbox, mb *mailbox) []*mailbox {
	out := make([]*mailbox, 0, len(subs)+1)
	out = append(out, subs...)
	return append(out, mb)
}

func removeCopy(subs []*mailbox, id uint64) []*mailbox {
	out := make([]*mailbox, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
