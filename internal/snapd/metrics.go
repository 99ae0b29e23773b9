package snapd

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors a Client reports into. A nil
// *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inflight        prometheus.Gauge
	connects        prometheus.Counter
	disconnects     prometheus.Counter
	polls           prometheus.Counter
	aborts          prometheus.Counter
	droppedFrames   prometheus.Counter
	progress        prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const ns, sub = "snapc", "client"

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "requests_total",
			Help:      "Completed requests by kind and outcome",
		}, []string{"kind", "outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "request_duration_seconds",
			Help:      "Time from submission to completion",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind"}),

		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "inflight_requests",
			Help:      "Requests submitted but not yet completed",
		}),

		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "connects_total",
			Help:      "Socket connections established",
		}),

		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "disconnects_total",
			Help:      "Socket connections torn down after an error or close by the daemon",
		}),

		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "change_polls_total",
			Help:      "Change status polls sent",
		}),

		aborts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "change_aborts_total",
			Help:      "Change abort requests sent",
		}),

		droppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "dropped_frames_total",
			Help:      "Responses that matched no pending request",
		}),

		progress: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "progress_updates_total",
			Help:      "Change snapshots delivered to progress callbacks",
		}),
	}
}

func (m *Metrics) requestStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) requestDone(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case IsKind(err, KindCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	m.inflight.Dec()
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) connected() {
	if m != nil {
		m.connects.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.disconnects.Inc()
	}
}

func (m *Metrics) polled() {
	if m != nil {
		m.polls.Inc()
	}
}

func (m *Metrics) aborted() {
	if m != nil {
		m.aborts.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.droppedFrames.Inc()
	}
}

func (m *Metrics) progressed() {
	if m != nil {
		m.progress.Inc()
	}
}
