package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/arklim/labsys-access/internal/core/domain"
)

func newMetricsRouter(t *testing.T) (*gin.Engine, *HTTPMetrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	router := gin.New()
	router.Use(metrics.Handler())

	asAdmin := func(c *gin.Context) {
		c.Set(identityKey, domain.Identity{ID: "u-1", Role: domain.RoleAdministrator})
		c.Next()
	}
	router.GET("/users", asAdmin, func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/audit", func(c *gin.Context) { c.Status(http.StatusForbidden) })
	return router, metrics
}

func serve(router *gin.Engine, path string) int {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr.Code
}

func TestHTTPMetricsLabelsCallerRole(t *testing.T) {
	router, metrics := newMetricsRouter(t)

	if code := serve(router, "/users"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/users", "200", "administrator")); got != 1 {
		t.Fatalf("expected one administrator request, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.InFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back at 0, got %f", got)
	}
	if samples := testutil.CollectAndCount(metrics.Duration); samples == 0 {
		t.Fatal("expected a latency sample")
	}
}

func TestHTTPMetricsCountsDenialsAndUnmatched(t *testing.T) {
	router, metrics := newMetricsRouter(t)

	serve(router, "/audit")
	serve(router, "/nope")

	if got := testutil.ToFloat64(metrics.Denied.WithLabelValues("/audit", "403")); got != 1 {
		t.Fatalf("expected one denial, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/audit", "403", "anonymous")); got != 1 {
		t.Fatalf("expected anonymous request, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "unmatched", "404", "anonymous")); got != 1 {
		t.Fatalf("expected unmatched route label, got %f", got)
	}
}

func TestHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewHTTPMetrics(HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Requests != second.Requests {
		t.Fatal("expected the registered counter to be reused")
	}
}

func TestHTTPMetricsHandlerNoopWhenNil(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use((*HTTPMetrics)(nil).Handler())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	if code := serve(router, "/ping"); code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
}
