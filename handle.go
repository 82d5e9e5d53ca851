package yarl39

import (
	"context"
	"sync/atomic"
)

const (
	handlePending uint32 = iota
	handleClaimed
	handleResolved
	handleCanceled
)

// Handle is the write-once result slot for one pumped call. It resolves
// exactly once, either with the callable's outcome or with ErrCanceled,
// and any number of waiters may observe it.
type Handle[R any] struct {
	s    uint32
	done chan struct{}
	val  R
	err  error
}

func newHandle[R any]() *Handle[R] {
	return &Handle[R]{
		done: make(chan struct{}),
	}
}

// Done is closed once the handle holds an outcome.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the handle resolves or ctx expires. A ctx error does
// not disturb the underlying call: it still executes and resolves, and a
// later Result will observe it.
func (h *Handle[R]) Result(ctx context.Context) (R, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// TryCancel resolves the handle with ErrCanceled if the worker has not
// claimed the call yet, and reports whether it won. A false return means
// the call is already dispatching (or finished) and resolves normally; an
// in-flight invocation is never interrupted.
func (h *Handle[R]) TryCancel() bool {
	if !atomic.CompareAndSwapUint32(&h.s, handlePending, handleCanceled) {
		return false
	}
	h.err = ErrCanceled
	close(h.done)
	return true
}

// claim marks the call as owned by the worker. Exactly one of claim and
// TryCancel wins.
func (h *Handle[R]) claim() bool {
	return atomic.CompareAndSwapUint32(&h.s, handlePending, handleClaimed)
}

func (h *Handle[R]) resolve(val R, err error) {
	if !atomic.CompareAndSwapUint32(&h.s, handleClaimed, handleResolved) {
		return
	}
	h.val = val
	h.err = err
	close(h.done)
}

// Gather waits for every handle and returns their values in the order the
// handles were given, regardless of completion order. The first failure
// encountered in that order is returned instead, including a captured
// callable failure.
func Gather[R any](ctx context.Context, handles []*Handle[R]) ([]R, error) {
	out := make([]R, len(handles))
	for i, h := range handles {
		v, err := h.Result(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
