// Package metrics exposes Prometheus collectors for the HTTP surface
// and the checkout funnel.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	checkoutsTotal  *prometheus.CounterVec
	saleValue       prometheus.Histogram
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dukaanpos"
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path", "status"},
		),
		checkoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkouts_total",
				Help:      "Checkout attempts by outcome",
			},
			[]string{"outcome", "payment_mode"},
		),
		saleValue: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sale_value_rupees",
				Help:      "Final bill totals of committed sales",
				Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
		),
	}

	prometheus.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.checkoutsTotal,
		m.saleValue,
	)

	return m
}

// ObserveCheckout records a checkout attempt. Committed sales also
// feed the bill-value histogram.
func (m *Metrics) ObserveCheckout(outcome string, paymentMode string, total float64) {
	m.checkoutsTotal.WithLabelValues(outcome, paymentMode).Inc()
	if outcome == "ok" {
		m.saleValue.Observe(total)
	}
}

// Middleware records request counts and latency. Dynamic id segments
// are collapsed so the path label stays at bounded cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.status)
		m.requestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// normalizePath replaces id segments in /api/v1 routes with a
// placeholder. /api/v1/sales/sale-123/receipt becomes
// /api/v1/sales/{id}/receipt.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/api/v1/") {
		return path
	}
	segments := strings.Split(path, "/")
	// segments: "", "api", "v1", resource, id?, action?
	if len(segments) >= 5 && segments[4] != "" {
		switch segments[3] {
		case "products", "customers", "sales":
			if segments[4] == "barcode" {
				if len(segments) >= 6 {
					segments[5] = "{barcode}"
				}
			} else {
				segments[4] = "{id}"
			}
		}
	}
	return strings.Join(segments, "/")
}
