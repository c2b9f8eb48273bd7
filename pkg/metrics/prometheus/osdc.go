// Package prometheus provides the concrete Prometheus collectors for the
// OSD client's request lifecycle and cluster-map ingestion.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/osdc/pkg/metrics"
)

// RequestMetrics is the Prometheus-backed collector for the request
// registry and dispatch engine.
type RequestMetrics struct {
	sent        prometheus.Counter
	resent      prometheus.Counter
	timedOut    prometheus.Counter
	completed   *prometheus.CounterVec
	registryLen prometheus.GaugeFunc
	replyLatency prometheus.Histogram
	epochBumps  prometheus.Counter
	fsidMismatch prometheus.Counter
}

// NewRequestMetrics creates a RequestMetrics instance bound to the process
// registry. lenFunc supplies the current registry depth on each scrape.
// Returns nil if metrics are not enabled (InitRegistry not called), so
// callers can pass a nil *RequestMetrics through call sites at zero cost.
func NewRequestMetrics(lenFunc func() float64) *RequestMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &RequestMetrics{
		sent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "osdc_requests_sent_total",
			Help: "Total number of OP requests sent to an OSD.",
		}),
		resent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "osdc_requests_resent_total",
			Help: "Total number of OP requests resubmitted by kick.",
		}),
		timedOut: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "osdc_requests_timed_out_total",
			Help: "Total number of registry timeout firings.",
		}),
		completed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "osdc_requests_completed_total",
				Help: "Total number of requests completed, by outcome.",
			},
			[]string{"outcome"}, // "ok", "error"
		),
		registryLen: promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
			Name: "osdc_registry_depth",
			Help: "Current number of requests outstanding in the registry.",
		}, lenFunc),
		replyLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "osdc_dispatch_to_reply_seconds",
			Help:    "Latency from dispatch to reply for completed requests.",
			Buckets: prometheus.DefBuckets,
		}),
		epochBumps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "osdc_map_epoch_bumps_total",
			Help: "Total number of times the cluster map advanced to a new epoch.",
		}),
		fsidMismatch: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "osdc_map_fsid_mismatch_total",
			Help: "Total number of map updates rejected for fsid mismatch.",
		}),
	}
}

// RecordSend increments the sent counter.
func (m *RequestMetrics) RecordSend() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

// RecordResend increments the resent counter.
func (m *RequestMetrics) RecordResend() {
	if m == nil {
		return
	}
	m.resent.Inc()
}

// RecordTimeout increments the timeout counter.
func (m *RequestMetrics) RecordTimeout() {
	if m == nil {
		return
	}
	m.timedOut.Inc()
}

// RecordCompletion increments the completed counter for outcome ("ok" or
// "error") and observes the dispatch-to-reply latency.
func (m *RequestMetrics) RecordCompletion(outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(outcome).Inc()
	m.replyLatency.Observe(latencySeconds)
}

// RecordEpochBump increments the epoch-advance counter.
func (m *RequestMetrics) RecordEpochBump() {
	if m == nil {
		return
	}
	m.epochBumps.Inc()
}

// RecordFsidMismatch increments the fsid-mismatch counter.
func (m *RequestMetrics) RecordFsidMismatch() {
	if m == nil {
		return
	}
	m.fsidMismatch.Inc()
}
