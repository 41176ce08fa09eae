package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/rollup/internal/contracts"
)

// Metrics holds the API collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	imported prometheus.Counter
	rejected prometheus.Counter
	imports  *prometheus.CounterVec
}

// NewMetrics registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollup",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollup",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		imported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollup",
			Name:      "ingest_records_total",
			Help:      "Records accepted by imports.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollup",
			Name:      "ingest_rejected_rows_total",
			Help:      "Rows rejected by imports.",
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollup",
			Name:      "imports_total",
			Help:      "Imports by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.requests, m.duration, m.imported, m.rejected, m.imports,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveImport counts accepted and rejected rows
func (m *Metrics) ObserveImport(result *contracts.IngestResult) {
	m.imported.Add(float64(len(result.Records)))
	m.rejected.Add(float64(len(result.Errors)))

	outcome := "ok"
	switch {
	case result.Empty():
		outcome = "empty"
	case result.HasErrors():
		outcome = "partial"
	}
	m.imports.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency per route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the response status
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the middleware
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
