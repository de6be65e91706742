package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidplay/internal/observability"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces unsafe ids", func(t *testing.T) {
		for _, id := range []string{"two words", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, id)
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.NotEqual(t, id, seen)
			assert.Len(t, seen, 36)
		}
	})
}

func TestLoggingMiddleware_ContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := RequestID(NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context()).Info("inside handler")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/player/play", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), "msg=\"inside handler\" request_id=req-42")
	assert.Contains(t, buf.String(), "msg=\"http request\" request_id=req-42")
}

func TestLoggingMiddleware_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/player/status", nil))
	assert.Empty(t, buf.String(), "successful reads log at debug")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/player/pause", nil))
	assert.Contains(t, buf.String(), "path=/api/v1/player/pause")
	assert.Contains(t, buf.String(), "level=INFO")

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "status=500")
}

func TestLoggingMiddleware_Streams(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 8))
		require.NoError(t, http.NewResponseController(w).Flush())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/player/audio", nil))
	assert.Contains(t, buf.String(), `msg="stream opened"`)
	assert.Contains(t, buf.String(), `msg="stream closed"`)
	assert.Contains(t, buf.String(), `streamed="8 B"`)
	assert.Contains(t, buf.String(), "size=8")
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("decoder exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"status":500`)
	assert.Contains(t, buf.String(), "decoder exploded")
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://ui.local")
		rec := httptest.NewRecorder()
		CORS()(next).ServeHTTP(rec, req)

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), FrameSeqHeader)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("restricted origins", func(t *testing.T) {
		h := CORSWithOrigins([]string{"http://ui.local"})(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://ui.local")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))

		req.Header.Set("Origin", "http://evil.local")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/player/seek", nil)
		req.Header.Set("Origin", "http://ui.local")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		CORS()(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
		assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
	})
}

func TestSkipCompressionForStreams(t *testing.T) {
	payload := strings.Repeat("frame data ", 200)
	h := SkipCompressionForStreams(chimiddleware.Compress(5))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(payload))
	}))

	tests := []struct {
		name       string
		path       string
		accept     string
		compressed bool
	}{
		{"regular json", "/api/v1/player/status", "", true},
		{"pcm stream", "/api/v1/player/audio", "", false},
		{"event stream path", "/api/v1/player/events", "", false},
		{"event stream accept", "/anything", "text/event-stream", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", "gzip")
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			if tt.compressed {
				assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
			} else {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
				assert.Equal(t, payload, rec.Body.String())
			}
		})
	}
}
