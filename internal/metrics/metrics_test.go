package metrics

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera/api/internal/imaging"
	"github.com/tessera/api/internal/storage"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/users/{userId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	})

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/users/{userId}", "418")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestsTotal))
}

func TestMiddlewareFoldsUnknownMethods(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, method := range []string{"BREW", "WHEN", "x-random-1", http.MethodGet} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, "/ping", nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "204")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequestsTotal))
	assert.Equal(t, "other", methodLabel("PROPFIND"))
	assert.Equal(t, http.MethodPatch, methodLabel(http.MethodPatch))
}

func TestObserveCompression(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCompression(&imaging.Result{Data: make([]byte, 10), Passthrough: true}, 10, time.Millisecond, nil)
	m.ObserveCompression(&imaging.Result{Data: make([]byte, 40), Attempts: 3}, 100, time.Millisecond, nil)
	m.ObserveCompression(&imaging.Result{Data: make([]byte, 90), Attempts: 8, Fallback: true}, 100, time.Millisecond, nil)
	m.ObserveCompression(nil, 100, time.Millisecond, imaging.ErrDecode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompressionsTotal.WithLabelValues("passthrough")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompressionsTotal.WithLabelValues("compressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompressionsTotal.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompressionsTotal.WithLabelValues("error")))
	assert.Equal(t, 70.0, testutil.ToFloat64(m.CompressionBytesSaved))
}

func TestInstrumentStorage(t *testing.T) {
	m := New(prometheus.NewRegistry())
	s := m.InstrumentStorage(storage.NewMemoryStorage())
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "k", bytes.NewReader([]byte("abc")), 3, "text/plain"))
	obj, err := s.Download(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, obj.Body.Close())

	_, err = s.Download(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageOperationsTotal.WithLabelValues("upload")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StorageOperationsTotal.WithLabelValues("download")))
	// a missing object is not a storage failure
	assert.Equal(t, 0, testutil.CollectAndCount(m.StorageErrorsTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.CompressionsTotal.WithLabelValues("compressed").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tessera_image_compressions_total{outcome="compressed"} 1`))
}
