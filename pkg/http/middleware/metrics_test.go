package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMetricsRecordsRoute(t *testing.T) {
	e := echo.New()
	e.Use(RequestMetrics())
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", rec.Code)
	}
	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/ping", http.MethodGet, "200"))
	if got < 1 {
		t.Fatalf("requests counter: got %v want >= 1", got)
	}
}

func TestRequestMetricsSkipsScrapeEndpoint(t *testing.T) {
	e := echo.New()
	e.Use(RequestMetrics())
	e.GET("/metrics", func(c echo.Context) error { return c.String(http.StatusOK, "") })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/metrics", http.MethodGet, "200"))
	if got != 0 {
		t.Fatalf("scrape endpoint must not be counted, got %v", got)
	}
}
