package yarl39

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeSize is returned by Feed and Immed when the declared size
	// is negative.
	ErrNegativeSize = errors.New("yarl39: negative size")

	// ErrClosed is returned by Feed and Immed once the pump is draining or
	// stopped.
	ErrClosed = errors.New("yarl39: pump closed")

	// ErrQueueFull is returned by Feed and Immed when the pump was built
	// with WithMaxQueueDepth and both lanes together are at that depth.
	ErrQueueFull = errors.New("yarl39: queue full")

	// ErrCanceled resolves the handle of a call that was discarded before
	// executing, either by TryCancel or by Abort.
	ErrCanceled = errors.New("yarl39: call canceled")

	errNilSend      = errors.New("yarl39: nil send callable")
	errZeroCapacity = errors.New("yarl39: size per period must be positive")
	errZeroPeriod   = errors.New("yarl39: period must be positive")
)

// PanicError is delivered through a call's handle when the wrapped
// callable panicked. The worker loop itself survives the panic.
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("yarl39: callable panicked: %v", e.Value)
}
