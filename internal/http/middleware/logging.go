package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/vidplay/internal/observability"
)

// statusRecorder remembers the status code and counts body bytes.
// Flushing reaches the underlying writer through Unwrap, which
// http.ResponseController relies on for the event and audio streams.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status != 0 {
		return
	}
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (sr *statusRecorder) code() int {
	if sr.status == 0 {
		return http.StatusOK
	}
	return sr.status
}

// requestLevel picks the level of the access log line. Successful GET and
// HEAD requests log at debug so that status polling does not flood the
// output.
func requestLevel(method string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodGet || method == http.MethodHead:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// NewLoggingMiddleware logs every request and hands handlers a logger
// tagged with the request ID through observability.LoggerFromContext.
// Long-lived event and audio streams also log when they open, and their
// closing line carries the amount streamed. Must run after RequestID.
func NewLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := observability.WithRequestID(logger, GetRequestID(r.Context()))
			ctx := observability.ContextWithLogger(r.Context(), reqLogger)

			stream := isStreamRequest(r)
			if stream {
				reqLogger.DebugContext(ctx, "stream opened",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.code()),
				slog.Int64("size", rec.written),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			msg := "http request"
			if stream {
				msg = "stream closed"
				attrs = append(attrs, slog.String("streamed", humanize.IBytes(uint64(rec.written))))
			}
			reqLogger.LogAttrs(ctx, requestLevel(r.Method, rec.code()), msg, attrs...)
		})
	}
}
