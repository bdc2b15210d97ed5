package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	AttemptsStarted   prometheus.Counter
	AttemptsSubmitted *prometheus.CounterVec
	AttemptsAbandoned prometheus.Counter
	PersistFailures   prometheus.Counter
	RequestCounter    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AttemptsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Total number of quiz attempts started",
		}),
		AttemptsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_attempts_submitted_total",
			Help: "Total number of quiz attempts submitted",
		}, []string{"mode"}),
		AttemptsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_abandoned_total",
			Help: "Total number of quiz attempts torn down before submission",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_result_persist_failures_total",
			Help: "Total number of scored results that could not be saved",
		}),
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
	}
	m.registry.MustRegister(
		m.AttemptsStarted,
		m.AttemptsSubmitted,
		m.AttemptsAbandoned,
		m.PersistFailures,
		m.RequestCounter,
		m.RequestDuration,
	)
	return m
}

func (m *Metrics) AttemptStarted() { m.AttemptsStarted.Inc() }

func (m *Metrics) AttemptSubmitted(auto bool) {
	mode := "manual"
	if auto {
		mode = "auto"
	}
	m.AttemptsSubmitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) AttemptAbandoned() { m.AttemptsAbandoned.Inc() }

func (m *Metrics) PersistFailed() { m.PersistFailures.Inc() }

// Middleware records request counts and latencies per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
