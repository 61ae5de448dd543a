package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsPath is served by promhttp and never counted.
const MetricsPath = "/metrics"

// issueRoute is the route whose successful responses count as issued certificates.
const issueRoute = "/certificates"

// PrometheusMiddleware records request counts and latencies per route pattern,
// upload sizes, and the outcome of certificate issuance.
type PrometheusMiddleware struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	bodyBytes *prometheus.HistogramVec
	issued    *prometheus.CounterVec
}

// NewPrometheusMiddleware registers the collectors on reg. Registering twice on
// the same registry fails, so tests pass a fresh prometheus.NewRegistry().
func NewPrometheusMiddleware(reg prometheus.Registerer) (*PrometheusMiddleware, error) {
	m := &PrometheusMiddleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		bodyBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "Request body size of uploads.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"path"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "certificates_issued_total",
			Help: "Stamped certificates returned to callers, by log outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.latency, m.bodyBytes, m.issued} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the fiber middleware.
func (m *PrometheusMiddleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == MetricsPath {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		// Label by pattern so each hash does not become its own series.
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		if method == fiber.MethodPost {
			m.bodyBytes.WithLabelValues(path).Observe(float64(len(c.Body())))
			if path == issueRoute && status == fiber.StatusOK {
				outcome := "logged"
				if len(c.Response().Header.Peek("X-Log-Warning")) > 0 {
					outcome = "log_failed"
				}
				m.issued.WithLabelValues(outcome).Inc()
			}
		}
		return err
	}
}
