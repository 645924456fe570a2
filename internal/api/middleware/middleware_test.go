package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"ok":true}`))
})

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	limiter := NewRateLimiter(1, 2, zerolog.Nop())
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, limiter.Allow("10.0.0.2"), "other clients keep their own bucket")

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"), "one token refilled")
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(1, 1, zerolog.Nop())
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	now = now.Add(2 * limiterIdleTTL)
	limiter.Allow("10.0.0.2")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.clients, "10.0.0.1")
	assert.Contains(t, limiter.clients, "10.0.0.2")
}

func TestRateLimiter_Middleware(t *testing.T) {
	handler := NewRateLimiter(1, 1, zerolog.Nop()).Middleware(okHandler)

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/holds/h1", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	handler := NewRateLimiter(0, 0, zerolog.Nop()).Middleware(okHandler)
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5123"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "198.51.100.1", clientIP(req))
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("echoes allowed origins", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://clinic.example"})(okHandler)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/clinics/c1/availability", nil)
		req.Header.Set("Origin", "https://clinic.example")
		handler.ServeHTTP(w, req)

		assert.Equal(t, "https://clinic.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})

	t.Run("ignores other origins", func(t *testing.T) {
		handler := CORSMiddleware([]string{"https://clinic.example"})(okHandler)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("answers preflight", func(t *testing.T) {
		called := false
		handler := CORSMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/appointments", nil)
		req.Header.Set("Origin", "https://any.example")
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.False(t, called)
	})
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLogged bool
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Ctx(r.Context()).Info().Msg("inside handler")
		ctxLogged = true
		w.WriteHeader(http.StatusConflict)
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/holds", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(w, req)

	require.True(t, ctxLogged)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, summary map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &summary))
	assert.Equal(t, "req-42", inner["request_id"])
	assert.Equal(t, "warn", summary["level"])
	assert.Equal(t, float64(http.StatusConflict), summary["status"])
	assert.Equal(t, "/api/holds", summary["path"])
}

func TestRouteLabel(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/appointments/4f1c/clinic-response", nil)
	assert.Equal(t, "POST /api/appointments/{id}/clinic-response", routeLabel(req))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.Equal(t, "GET /health", routeLabel(req))
}

func TestCacheControl(t *testing.T) {
	handler := ResponseOptimization(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clinics/c1/availability?date=2026-03-02", nil))
	assert.Equal(t, "private, no-cache, must-revalidate", w.Header().Get("Cache-Control"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/clinics/c1/availability?date=2026-03-02", nil)
	req.Header.Set("If-None-Match", etag)
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/holds", nil))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestResponseOptimization_SkipsEventStreams(t *testing.T) {
	var flushed bool
	handler := ResponseOptimization(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: connected\n\n"))
		_, flushed = w.(http.Flusher)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/clinics/c1/events", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, flushed, "stream writer must stay flushable")
	assert.Empty(t, w.Header().Get("ETag"))
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Equal(t, "event: connected\n\n", w.Body.String())
}
