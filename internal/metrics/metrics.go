package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine metrics registered on its own registry.
// It is safe for concurrent use; a nil *Collector records nothing.
type Collector struct {
	// requestsTotal counts finished requests by method and outcome.
	requestsTotal *prometheus.CounterVec
	// requestDuration tracks request latency by method and outcome.
	requestDuration *prometheus.HistogramVec
	// queuedTasks is the number of tasks waiting for a runtime worker.
	queuedTasks prometheus.Gauge
	// busyWorkers is the number of runtime workers executing a task.
	busyWorkers prometheus.Gauge
	// registry holds every collector above.
	registry *prometheus.Registry
}

const namespace = "fetchcore"

var (
	//nolint:gochecknoglobals // The process-wide collector mirrors the process-wide engine singletons.
	defaultCollector *Collector
	//nolint:gochecknoglobals // Guards defaultCollector.
	defaultCollectorOnce sync.Once
)

// New creates a collector backed by a fresh registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of finished requests by outcome",
			},
			[]string{"method", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of requests in seconds, body consumption included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
		queuedTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runtime_queued_tasks",
				Help:      "Number of tasks waiting for a runtime worker",
			},
		),
		busyWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runtime_busy_workers",
				Help:      "Number of runtime workers currently executing a task",
			},
		),
		registry: registry,
	}
}

// Default returns the process-wide collector.
func Default() *Collector {
	defaultCollectorOnce.Do(func() {
		defaultCollector = New()
	})

	return defaultCollector
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished request.
func (c *Collector) ObserveRequest(method, outcome string, duration time.Duration) {
	if c == nil {
		return
	}

	c.requestsTotal.WithLabelValues(method, outcome).Inc()
	c.requestDuration.WithLabelValues(method, outcome).Observe(duration.Seconds())
}

// TaskQueued records a task entering the runtime queue.
func (c *Collector) TaskQueued() {
	if c == nil {
		return
	}

	c.queuedTasks.Inc()
}

// TaskStarted records a task leaving the queue for a worker.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}

	c.queuedTasks.Dec()
	c.busyWorkers.Inc()
}

// TaskFinished records a worker becoming idle.
func (c *Collector) TaskFinished() {
	if c == nil {
		return
	}

	c.busyWorkers.Dec()
}
