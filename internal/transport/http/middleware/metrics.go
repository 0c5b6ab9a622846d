package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	unmatchedRoute = "unmatched"
	anonymousRole  = "anonymous"
)

var httpLabels = []string{"method", "route", "status", "role"}

// HTTPMetricsOptions configures the HTTP metrics middleware.
type HTTPMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// HTTPMetrics instruments the REST surface. Requests are labelled with the
// role of the caller once RequireAuth has resolved one.
type HTTPMetrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
	Denied   *prometheus.CounterVec
}

// NewHTTPMetrics registers the collectors, reusing any already registered under the same names.
func NewHTTPMetrics(opts HTTPMetricsOptions) (*HTTPMetrics, error) {
	if opts.Namespace == "" {
		opts.Namespace = "lab"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}

	m := &HTTPMetrics{}
	var err error

	if m.Requests, err = registerHTTP(opts.Registerer, "requests", prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route, status and caller role.",
	}, httpLabels)); err != nil {
		return nil, err
	}

	if m.Duration, err = registerHTTP(opts.Registerer, "duration", prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: opts.Namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   opts.Buckets,
	}, httpLabels)); err != nil {
		return nil, err
	}

	if m.InFlight, err = registerHTTP(opts.Registerer, "in-flight", prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	})); err != nil {
		return nil, err
	}

	if m.Denied, err = registerHTTP(opts.Registerer, "denied", prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: "http",
		Name:      "access_denied_total",
		Help:      "Requests rejected with 401 or 403 by route.",
	}, []string{"route", "status"})); err != nil {
		return nil, err
	}

	return m, nil
}

func registerHTTP[C prometheus.Collector](reg prometheus.Registerer, name string, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register http %s collector: %w", name, err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing http %s collector has wrong type %T", name, already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// Handler returns a Gin middleware that records the HTTP metrics.
func (m *HTTPMetrics) Handler() gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		// Unmatched paths collapse to one label value to bound cardinality.
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		role := anonymousRole
		if identity, ok := GetIdentity(c); ok {
			role = string(identity.Role)
		}

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		m.Requests.WithLabelValues(c.Request.Method, route, status, role).Inc()
		m.Duration.WithLabelValues(c.Request.Method, route, status, role).Observe(time.Since(start).Seconds())

		if code == http.StatusUnauthorized || code == http.StatusForbidden {
			m.Denied.WithLabelValues(route, status).Inc()
		}
	}
}
