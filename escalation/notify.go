/*
notify.go - Fire-and-forget notification requests

PURPOSE:
  The escalation engine emits notification requests; delivery belongs
  to an external dispatcher. Enqueueing never blocks a sweep: a full
  queue drops the request and logs it, it does not await delivery.
*/
package escalation

import (
	"github.com/sirupsen/logrus"

	"github.com/warp/recon-engine/ledger"
)

// =============================================================================
// NOTIFICATION REQUESTS
// =============================================================================

// Notification is one delivery request handed to the external
// dispatcher. Payload carries template variables the core never
// inspects.
type Notification struct {
	Recipient string
	Template  string
	CaseID    ledger.CaseID
	Payload   map[string]string
}

// Notifier receives notification requests. Implementations must not
// block the caller.
type Notifier interface {
	Enqueue(n Notification)
}

// =============================================================================
// QUEUE - Buffered channel-backed notifier
// =============================================================================

// Queue buffers notifications for an external consumer draining C.
// When the buffer is full the request is dropped and logged; the sweep
// never waits on delivery.
type Queue struct {
	C   chan Notification
	Log *logrus.Logger
}

func NewQueue(size int, log *logrus.Logger) *Queue {
	if log == nil {
		log = logrus.New()
	}
	return &Queue{C: make(chan Notification, size), Log: log}
}

func (q *Queue) Enqueue(n Notification) {
	select {
	case q.C <- n:
	default:
		q.Log.WithFields(logrus.Fields{
			"case":     n.CaseID,
			"template": n.Template,
		}).Warn("notification queue full, request dropped")
	}
}

// Drain empties the queue, returning everything buffered so far.
func (q *Queue) Drain() []Notification {
	var out []Notification
	for {
		select {
		case n := <-q.C:
			out = append(out, n)
		default:
			return out
		}
	}
}
