package yarl39

import (
	"sync"
	"time"

	"github.com/bradenaw/juniper/container/deque"
)

// admission is one ledger entry: a size dispatched at a given instant. It
// stops counting against the window once `period` has passed.
type admission struct {
	at   time.Time
	size int64
}

// Budget tracks the cumulative size admitted during a trailing window and
// decides whether another admission of a given size may proceed yet.
//
// A size larger than the entire capacity is never refused outright: it is
// admitted alone once every earlier admission has aged out of the window.
// This is a deliberate policy so that oversized calls are delayed, not
// starved.
//
// Only the pump's single worker consults the budget today, but the whole
// contract is guarded by a mutex so it stays correct if more workers are
// ever added.
type Budget struct {
	m        sync.Mutex
	capacity int64
	period   time.Duration
	used     int64
	ledger   deque.Deque[admission]
}

func NewBudget(capacity int64, period time.Duration) *Budget {
	return &Budget{
		capacity: capacity,
		period:   period,
	}
}

// TryAdmit asks whether a call of the given size may dispatch at `now`.
// If it may, the size is recorded against the window and ok is true.
// Otherwise retryAt is the earliest instant at which enough of the window
// will have expired for the same request to succeed; the caller must not
// proceed before then.
//
// A size of zero is always admitted and consumes no budget.
func (b *Budget) TryAdmit(now time.Time, size int64) (retryAt time.Time, ok bool) {
	if size == 0 {
		return time.Time{}, true
	}

	b.m.Lock()
	defer b.m.Unlock()

	b.expire(now)

	if b.ledger.Len() == 0 || b.used+size <= b.capacity {
		b.ledger.PushBack(admission{at: now, size: size})
		b.used += size
		return time.Time{}, true
	}

	// Walk the ledger oldest-first to find the entry whose expiry frees
	// enough room.
	freed := int64(0)
	for i := 0; i < b.ledger.Len(); i++ {
		e := b.ledger.Item(i)
		freed += e.size
		if b.used-freed+size <= b.capacity {
			return e.at.Add(b.period), false
		}
	}

	// Larger than the capacity itself: wait for the window to clear
	// entirely, then the empty-ledger case above admits it alone.
	return b.ledger.Item(b.ledger.Len() - 1).at.Add(b.period), false
}

// Capacity returns the current size-per-period limit.
func (b *Budget) Capacity() int64 {
	b.m.Lock()
	defer b.m.Unlock()
	return b.capacity
}

// SetCapacity replaces the size-per-period limit. Sizes already recorded
// in the window keep counting against the new value.
func (b *Budget) SetCapacity(capacity int64) {
	b.m.Lock()
	defer b.m.Unlock()
	b.capacity = capacity
}

func (b *Budget) expire(now time.Time) {
	for b.ledger.Len() > 0 {
		e := b.ledger.Item(0)
		if now.Sub(e.at) < b.period {
			break
		}
		b.used -= e.size
		b.ledger.PopFront()
	}
}
