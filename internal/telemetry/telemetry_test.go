package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	boom := errors.New("boom")

	assert.NotPanics(t, func() {
		tel.RecordUpdateCheck(ctx, "available", time.Second)
		tel.RecordUpdateEvent(ctx, "checking")
		tel.RecordDownload(ctx, "success", time.Second)
		tel.RecordDownloadedBytes(ctx, 1024)
		tel.RecordGatewayOperation(ctx, "github", "check", "error")
		tel.RecordDBOperation(ctx, "record_check", "success", time.Millisecond)
		tel.RecordSystemError(ctx, "updater", "panic")
	})

	assert.ErrorIs(t, tel.InstrumentGatewayOperation(ctx, "github", "check", func(context.Context) error { return boom }), boom)
	assert.ErrorIs(t, tel.InstrumentDownload(ctx, func(context.Context) error { return boom }), boom)
	assert.NoError(t, tel.InstrumentDBOperation(ctx, "record_check", func(context.Context) error { return nil }))
	assert.Nil(t, tel.LogHandler())
	assert.NoError(t, tel.Shutdown(ctx))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry

	ctx := context.Background()
	called := false

	err := tel.InstrumentOperation(ctx, "op", "test", func(context.Context) error {
		called = true

		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NotNil(t, tel.Tracer())
	assert.Nil(t, tel.LogHandler())
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestHTTPMiddlewareRecordsRoutePattern(t *testing.T) {
	var route string

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			route = routePattern(req)
		})
	})
	r.Use(NewHTTPMiddleware(&Telemetry{}).Middleware)
	r.Get("/updates/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/updates/status", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "/updates/{name}", route)
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.status)
	assert.EqualValues(t, 5, rw.bytesWritten)
	assert.Same(t, rw, wrapResponseWriter(rw))
	assert.Equal(t, http.ResponseWriter(rec), rw.Unwrap())

	rw.Flush()
	assert.True(t, rec.Flushed)
}

func TestGetStatusClass(t *testing.T) {
	tests := map[int]string{
		http.StatusOK:                 "2xx",
		http.StatusAccepted:           "2xx",
		http.StatusFound:              "3xx",
		http.StatusNotFound:           "4xx",
		http.StatusBadGateway:         "5xx",
		http.StatusSwitchingProtocols: "unknown",
	}

	for code, want := range tests {
		assert.Equal(t, want, getStatusClass(code), "status %d", code)
	}
}
