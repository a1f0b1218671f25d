package eventbus

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/queue"
)

type mailbox struct {
	id      uint64
	handler Handler
	queue   *queue.Unbounded[Event]
}

func newMailbox(id uint64, handler Handler) *mailbox {
	return &mailbox{id: id, handler: handler, queue: queue.New[Event]()}
}

func (mb *mailbox) push(e Event) {
	mb.queue.Push(e)
}

// stop ends delivery. With drain, events already queued are still delivered.
func (mb *mailbox) stop(drain bool) {
	if drain {
		mb.queue.Drain()
		return
	}
	mb.queue.Close()
}

func (mb *mailbox) run(logger *logrus.Logger, label string) {
	for {
		e, ok := mb.queue.Pop()
		if !ok {
			return
		}
		mb.deliver(logger, label, e)
	}
}

func (mb *mailbox) deliver(logger *logrus.Logger, label string, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"topic":        e.Topic().String(),
				"subscription": mb.id,
				"subscribed":   label,
				"panic":        r,
			}).Error("Event handler panicked")
		}
	}()
	mb.handler(e)
}
