package yarl39

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments a single pump. Built and registered by WithMetrics.
type Metrics struct {
	Dispatched     *prometheus.CounterVec
	DispatchedSize *prometheus.CounterVec
	Failures       prometheus.Counter
	Canceled       prometheus.Counter
	QueueDepth     prometheus.Gauge
	QueueWait      prometheus.Histogram
	ThrottleDelay  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarl39_dispatched_total",
			Help: "Calls handed to the wrapped callable",
		}, []string{"lane"}),
		DispatchedSize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yarl39_dispatched_size_total",
			Help: "Cumulative declared size of dispatched calls",
		}, []string{"lane"}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yarl39_failures_total",
			Help: "Calls whose callable returned an error or panicked",
		}),
		Canceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yarl39_canceled_total",
			Help: "Queued calls resolved without executing",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yarl39_queue_depth",
			Help: "Calls waiting in either lane",
		}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yarl39_queue_wait_seconds",
			Help:    "Time calls spent queued before being picked for dispatch",
			Buckets: prometheus.DefBuckets,
		}),
		ThrottleDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "yarl39_throttle_delay_seconds",
			Help:    "Time dispatches spent waiting for budget",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.Dispatched,
		m.DispatchedSize,
		m.Failures,
		m.Canceled,
		m.QueueDepth,
		m.QueueWait,
		m.ThrottleDelay,
	)
	return m
}
