package yarl39

import (
	"context"
	"sync"
	"time"

	"github.com/bradenaw/juniper/xsync"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type pumpState int

const (
	stateRunning pumpState = iota
	stateDraining
	stateStopped
)

// meterBuckets is how finely the observed-flow window is bucketed.
const meterBuckets = 10

type Option struct{ f func(*options) }

type options struct {
	maxQueueDepth int
	adaptive      bool
	logger        *zap.Logger
	registry      prometheus.Registerer
}

// WithMaxQueueDepth bounds the total number of queued calls across both
// lanes; Feed and Immed return ErrQueueFull at the bound. Zero (the
// default) means unbounded.
func WithMaxQueueDepth(n int) Option {
	return Option{func(opts *options) {
		opts.maxQueueDepth = n
	}}
}

// WithAdaptiveCapacity lets the pump learn the backend's real bandwidth:
// whenever the completed size observed inside one period exceeds the
// current size-per-period, the budget is raised to match. The constructor
// value becomes a floor rather than a fixed limit.
func WithAdaptiveCapacity() Option {
	return Option{func(opts *options) {
		opts.adaptive = true
	}}
}

// WithLogger attaches a structured logger. The default discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return Option{func(opts *options) {
		opts.logger = logger
	}}
}

// WithMetrics registers the pump's instrumentation with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return Option{func(opts *options) {
		opts.registry = reg
	}}
}

// Pump drives calls to a wrapped callable, keeping the total declared size
// dispatched inside any trailing period at or below a budget.
//
// Producers may call Feed and Immed from any number of goroutines. A
// single worker goroutine pops the next admissible call (immediate lane
// strictly first, FIFO within a lane), blocks until the Budget permits its
// size, invokes the callable, and publishes the outcome to the call's
// Handle. A call that has been popped holds its dispatch slot while
// throttled; an immediate call arriving during that wait runs after it,
// not instead of it.
type Pump[A, R any] struct {
	send     func(context.Context, A) (R, error)
	budget   *Budget
	period   time.Duration
	capacity int64
	adaptive bool
	maxDepth int
	log      *zap.Logger
	metrics  *Metrics
	bg       *xsync.Group

	m     sync.Mutex
	state pumpState
	queue dualQueue[A, R]

	wake      chan struct{}
	aborted   chan struct{}
	abortOnce sync.Once
	drained   chan struct{}

	// Touched only by the worker goroutine.
	meter     *flowMeter
	startedAt time.Time
	warnedAt  time.Time
}

// New builds a pump around send and starts its worker. sizePerPeriod is
// the maximum cumulative size dispatched inside any trailing window of
// length period.
func New[A, R any](
	send func(context.Context, A) (R, error),
	sizePerPeriod int64,
	period time.Duration,
	opts ...Option,
) (*Pump[A, R], error) {
	if send == nil {
		return nil, errNilSend
	}
	if sizePerPeriod <= 0 {
		return nil, errZeroCapacity
	}
	if period <= 0 {
		return nil, errZeroPeriod
	}

	opt := options{
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o.f(&opt)
	}

	now := time.Now()
	p := &Pump[A, R]{
		send:      send,
		budget:    NewBudget(sizePerPeriod, period),
		period:    period,
		capacity:  sizePerPeriod,
		adaptive:  opt.adaptive,
		maxDepth:  opt.maxQueueDepth,
		log:       opt.logger,
		bg:        xsync.NewGroup(context.Background()),
		wake:      make(chan struct{}, 1),
		aborted:   make(chan struct{}),
		drained:   make(chan struct{}),
		meter:     newFlowMeter(now, period, meterBuckets),
		startedAt: now,
	}
	if opt.registry != nil {
		p.metrics = NewMetrics(opt.registry)
	}
	p.bg.Once(p.run)
	return p, nil
}

// Feed appends a call to the back of the background lane and returns its
// handle without waiting for dispatch.
func (p *Pump[A, R]) Feed(size int64, args A) (*Handle[R], error) {
	return p.enqueue(size, args, Background)
}

// Immed enqueues a call on the immediate lane, ahead of all queued
// background work but behind immediate calls enqueued earlier.
func (p *Pump[A, R]) Immed(size int64, args A) (*Handle[R], error) {
	return p.enqueue(size, args, Immediate)
}

// Len reports the number of calls waiting across both lanes.
func (p *Pump[A, R]) Len() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.queue.len()
}

// Close stops intake and blocks until every queued and in-flight call has
// completed and the worker has exited. No work is dropped. Safe to call
// more than once.
func (p *Pump[A, R]) Close() {
	p.m.Lock()
	if p.state == stateRunning {
		p.state = stateDraining
	}
	p.m.Unlock()
	p.wakeWorker()
	<-p.drained
	p.bg.Wait()
}

// Abort stops intake, resolves every call that has not started executing
// with ErrCanceled, waits out any in-flight invocation, and stops the
// worker. Safe to call more than once, and after Close.
func (p *Pump[A, R]) Abort() {
	p.m.Lock()
	if p.state == stateRunning {
		p.state = stateDraining
	}
	canceled := p.queue.cancelAll()
	p.m.Unlock()

	p.abortOnce.Do(func() { close(p.aborted) })
	if canceled > 0 {
		p.log.Debug("aborted queued calls", zap.Int("count", canceled))
		if p.metrics != nil {
			p.metrics.Canceled.Add(float64(canceled))
			p.metrics.QueueDepth.Set(0)
		}
	}
	p.wakeWorker()
	<-p.drained
	p.bg.Wait()
}

func (p *Pump[A, R]) enqueue(size int64, args A, priority Priority) (*Handle[R], error) {
	if size < 0 {
		return nil, ErrNegativeSize
	}
	pc := &pendingCall[A, R]{
		id:         uuid.New(),
		size:       size,
		args:       args,
		priority:   priority,
		enqueuedAt: time.Now(),
		handle:     newHandle[R](),
	}

	p.m.Lock()
	if p.state != stateRunning {
		p.m.Unlock()
		return nil, ErrClosed
	}
	if p.maxDepth > 0 && p.queue.len() >= p.maxDepth {
		p.m.Unlock()
		return nil, ErrQueueFull
	}
	p.queue.push(pc)
	depth := p.queue.len()
	p.m.Unlock()

	if p.metrics != nil {
		p.metrics.QueueDepth.Set(float64(depth))
	}
	p.log.Debug("enqueued",
		zap.String("call", pc.id.String()),
		zap.Int64("size", size),
		zap.Stringer("lane", priority),
	)
	p.wakeWorker()
	return pc.handle, nil
}

func (p *Pump[A, R]) wakeWorker() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run is the worker loop: pop the next admissible call, block until the
// budget allows its size, invoke, publish, repeat. It exits once the pump
// is draining and both lanes are empty.
func (p *Pump[A, R]) run(ctx context.Context) {
	defer close(p.drained)
	for {
		pc, ok := p.next(ctx)
		if !ok {
			p.m.Lock()
			p.state = stateStopped
			p.m.Unlock()
			p.log.Debug("worker exiting")
			return
		}
		if !p.throttle(ctx, pc) {
			// Aborted while waiting for budget. The call never executed.
			var zero R
			pc.handle.resolve(zero, ErrCanceled)
			if p.metrics != nil {
				p.metrics.Canceled.Inc()
			}
			continue
		}
		p.dispatch(ctx, pc)
	}
}

// next blocks until a call is available, returning false once the pump is
// draining and both lanes are empty.
func (p *Pump[A, R]) next(ctx context.Context) (*pendingCall[A, R], bool) {
	for {
		p.m.Lock()
		pc, dropped, ok := p.queue.popNext()
		draining := p.state != stateRunning
		depth := p.queue.len()
		p.m.Unlock()

		if p.metrics != nil && dropped > 0 {
			p.metrics.Canceled.Add(float64(dropped))
		}
		if ok {
			if p.metrics != nil {
				p.metrics.QueueDepth.Set(float64(depth))
				p.metrics.QueueWait.Observe(time.Since(pc.enqueuedAt).Seconds())
			}
			return pc, true
		}
		if draining {
			return nil, false
		}
		select {
		case <-p.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// throttle blocks until the budget admits pc's size. The popped call owns
// the dispatch slot: arrivals on the immediate lane during this wait do
// not displace it. Returns false if the pump was aborted first.
func (p *Pump[A, R]) throttle(ctx context.Context, pc *pendingCall[A, R]) bool {
	start := time.Now()
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		retryAt, ok := p.budget.TryAdmit(time.Now(), pc.size)
		if ok {
			if p.metrics != nil {
				p.metrics.ThrottleDelay.Observe(time.Since(start).Seconds())
			}
			return true
		}
		d := time.Until(retryAt)
		if d < 0 {
			d = 0
		}
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}
		select {
		case <-timer.C:
		case <-p.aborted:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (p *Pump[A, R]) dispatch(ctx context.Context, pc *pendingCall[A, R]) {
	val, err := p.invoke(ctx, pc.args)

	now := time.Now()
	p.meter.add(now, pc.size)
	p.observeFlow(now)

	if p.metrics != nil {
		lane := pc.priority.String()
		p.metrics.Dispatched.WithLabelValues(lane).Inc()
		p.metrics.DispatchedSize.WithLabelValues(lane).Add(float64(pc.size))
		if err != nil {
			p.metrics.Failures.Inc()
		}
	}
	if err != nil {
		p.log.Debug("call failed",
			zap.String("call", pc.id.String()),
			zap.Error(err),
		)
	}
	pc.handle.resolve(val, err)
}

// invoke shields the worker loop from a panicking callable.
func (p *Pump[A, R]) invoke(ctx context.Context, args A) (val R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return p.send(ctx, args)
}

// observeFlow compares what the backend actually completed against the
// configured capacity. In adaptive mode the budget is raised to the best
// observed flow. Otherwise a persistent shortfall while calls are queueing
// is worth a warning: immediate calls are waiting behind a limit the
// backend never reaches.
func (p *Pump[A, R]) observeFlow(now time.Time) {
	best := p.meter.bestObserved()
	if p.adaptive {
		if best > p.budget.Capacity() {
			p.budget.SetCapacity(best)
			p.log.Debug("capacity raised", zap.Int64("size_per_period", best))
		}
		return
	}
	if now.Sub(p.startedAt) < p.period || now.Sub(p.warnedAt) < p.period {
		return
	}
	if best >= p.capacity {
		return
	}
	p.m.Lock()
	waiting := p.queue.len()
	p.m.Unlock()
	if waiting == 0 {
		return
	}
	p.warnedAt = now
	p.log.Warn("measured size per period underperforms configured size per period; "+
		"immed calls will stay slow from backpressure if this persists",
		zap.Int64("measured", best),
		zap.Int64("configured", p.capacity),
		zap.Duration("period", p.period),
	)
}
