// Package metrics exposes Prometheus instrumentation for HTTP traffic, image compression and
// object storage.
package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessera/api/internal/imaging"
	"github.com/tessera/api/internal/storage"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Compression metrics
	CompressionsTotal     *prometheus.CounterVec
	CompressionDuration   prometheus.Histogram
	CompressionRatio      prometheus.Histogram
	CompressionAttempts   prometheus.Histogram
	CompressionBytesSaved prometheus.Counter

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tessera_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tessera_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		CompressionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_image_compressions_total",
				Help: "Total number of image compressions by outcome",
			},
			[]string{"outcome"},
		),
		CompressionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tessera_image_compression_duration_seconds",
				Help:    "Image compression duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		CompressionRatio: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tessera_image_compression_ratio",
				Help:    "Output size divided by input size",
				Buckets: []float64{.05, .1, .2, .3, .5, .75, 1, 1.5},
			},
		),
		CompressionAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tessera_image_compression_attempts",
				Help:    "Encode attempts spent on the quality ladder",
				Buckets: prometheus.LinearBuckets(0, 1, 9),
			},
		),
		CompressionBytesSaved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tessera_image_compression_bytes_saved_total",
				Help: "Bytes saved by image compression",
			},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_storage_operations_total",
				Help: "Total number of object storage operations",
			},
			[]string{"operation"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tessera_storage_operation_duration_seconds",
				Help:    "Object storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tessera_storage_errors_total",
				Help: "Total number of failed object storage operations",
			},
			[]string{"operation"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.CompressionsTotal,
		m.CompressionDuration,
		m.CompressionRatio,
		m.CompressionAttempts,
		m.CompressionBytesSaved,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCompression records one finished compression.
func (m *Metrics) ObserveCompression(res *imaging.Result, inputBytes int, elapsed time.Duration, err error) {
	m.CompressionDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.CompressionsTotal.WithLabelValues("error").Inc()
		return
	}

	outcome := "compressed"
	switch {
	case res.Passthrough:
		outcome = "passthrough"
	case res.Fallback:
		outcome = "fallback"
	}
	m.CompressionsTotal.WithLabelValues(outcome).Inc()
	m.CompressionAttempts.Observe(float64(res.Attempts))
	if inputBytes > 0 {
		m.CompressionRatio.Observe(float64(len(res.Data)) / float64(inputBytes))
	}
	if saved := inputBytes - len(res.Data); saved > 0 {
		m.CompressionBytesSaved.Add(float64(saved))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// Middleware instruments requests. Routes are labelled by their chi pattern so that path
// parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		method := methodLabel(r.Method)
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		m.HTTPResponseSize.WithLabelValues(method, route).Observe(float64(rw.bytesWritten))
	})
}

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
	http.MethodConnect: true,
	http.MethodTrace:   true,
}

// methodLabel folds methods outside the standard set into "other".
func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// InstrumentStorage wraps s so that every operation is counted and timed.
func (m *Metrics) InstrumentStorage(s storage.Storage) storage.Storage {
	return &instrumentedStorage{next: s, m: m}
}

type instrumentedStorage struct {
	next storage.Storage
	m    *Metrics
}

func (s *instrumentedStorage) observe(op string, start time.Time, err error) {
	s.m.StorageOperationsTotal.WithLabelValues(op).Inc()
	s.m.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.m.StorageErrorsTotal.WithLabelValues(op).Inc()
	}
}

func (s *instrumentedStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	start := time.Now()
	err := s.next.Upload(ctx, key, body, size, contentType)
	s.observe("upload", start, err)
	return err
}

func (s *instrumentedStorage) Download(ctx context.Context, key string) (*storage.Object, error) {
	start := time.Now()
	obj, err := s.next.Download(ctx, key)
	s.observe("download", start, err)
	return obj, err
}

func (s *instrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}
