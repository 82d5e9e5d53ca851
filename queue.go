package yarl39

import (
	"time"

	"github.com/bradenaw/juniper/container/deque"
	"github.com/google/uuid"
)

// pendingCall is one queued invocation: the declared size, the caller's
// argument bundle, and the handle its outcome is delivered through.
type pendingCall[A, R any] struct {
	id         uuid.UUID
	size       int64
	args       A
	priority   Priority
	enqueuedAt time.Time
	handle     *Handle[R]
}

// dualQueue holds the two lanes. It is only ever touched under the pump's
// mutex; blocking for arrivals happens in the worker loop, not here.
type dualQueue[A, R any] struct {
	lanes [nLanes]deque.Deque[*pendingCall[A, R]]
}

func (q *dualQueue[A, R]) push(pc *pendingCall[A, R]) {
	q.lanes[pc.priority].PushBack(pc)
}

// popNext returns the head of the immediate lane if it is non-empty, else
// the head of the background lane. Calls canceled while queued are
// discarded along the way and counted in dropped; the returned call is
// already claimed for the worker.
func (q *dualQueue[A, R]) popNext() (pc *pendingCall[A, R], dropped int, ok bool) {
	for i := range q.lanes {
		lane := &q.lanes[i]
		for lane.Len() > 0 {
			pc := lane.PopFront()
			if pc.handle.claim() {
				return pc, dropped, true
			}
			dropped++
		}
	}
	return nil, dropped, false
}

func (q *dualQueue[A, R]) len() int {
	n := 0
	for i := range q.lanes {
		n += q.lanes[i].Len()
	}
	return n
}

// cancelAll resolves everything still queued with ErrCanceled and reports
// how many calls that was.
func (q *dualQueue[A, R]) cancelAll() int {
	n := 0
	for i := range q.lanes {
		for q.lanes[i].Len() > 0 {
			pc := q.lanes[i].PopFront()
			if pc.handle.TryCancel() {
				n++
			}
		}
	}
	return n
}
