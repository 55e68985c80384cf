// Package metrics exposes booking engine and HTTP instrumentation through Prometheus.
package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"evbooking/backend/services/booking-service/internal/models"
	"evbooking/backend/services/booking-service/internal/service"
)

// Collector implements service.Metrics backed by Prometheus.
type Collector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	sweepMoved      *prometheus.CounterVec
	sweepFailed     *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	sessionFailures *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

var _ service.Metrics = (*Collector)(nil)

// NewPrometheus creates a collector registering on reg (prometheus.DefaultRegisterer if nil)
// under namespace ("booking" if empty).
func NewPrometheus(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "booking"
	}
	c := &Collector{reg: reg, namespace: namespace}
	c.ensureRegistered()
	return c
}

func (c *Collector) ensureRegistered() {
	c.once.Do(func() {
		c.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Committed booking status transitions by source and target status.",
		}, []string{"from", "to"})

		c.rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "engine",
			Name:      "rejections_total",
			Help:      "Refused engine operations by operation and error kind.",
		}, []string{"op", "reason"})

		c.sweepMoved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "sweeper",
			Name:      "moved_total",
			Help:      "Bookings moved by sweep kind.",
		}, []string{"kind"})

		c.sweepFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "sweeper",
			Name:      "failed_total",
			Help:      "Per-row sweep failures by sweep kind.",
		}, []string{"kind"})

		c.sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Subsystem: "sweeper",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a sweep pass in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"kind"})

		c.sessionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "sessions",
			Name:      "failures_total",
			Help:      "Charging session open/close failures.",
		}, []string{"op"})

		c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"})

		c.httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"})

		c.reg.MustRegister(
			c.transitions,
			c.rejections,
			c.sweepMoved,
			c.sweepFailed,
			c.sweepDuration,
			c.sessionFailures,
			c.httpRequests,
			c.httpLatency,
		)
	})
}

// Transition counts a committed status change. from is empty for newly created bookings.
func (c *Collector) Transition(from, to models.BookingStatus) {
	source := string(from)
	if source == "" {
		source = "none"
	}
	c.transitions.WithLabelValues(source, string(to)).Inc()
}

// Rejected counts a refused operation.
func (c *Collector) Rejected(op string, err error) {
	c.rejections.WithLabelValues(op, Reason(err)).Inc()
}

// Sweep records the outcome of one sweep pass.
func (c *Collector) Sweep(kind string, moved, failed int, duration time.Duration) {
	c.sweepMoved.WithLabelValues(kind).Add(float64(moved))
	c.sweepFailed.WithLabelValues(kind).Add(float64(failed))
	c.sweepDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SessionFailure counts a failed session open or close.
func (c *Collector) SessionFailure(op string) {
	c.sessionFailures.WithLabelValues(op).Inc()
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// Reason maps an engine error to a low-cardinality label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, service.ErrValidation):
		return "validation"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, service.ErrConflict):
		return "conflict"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
