package middleware

import (
	"net/http"
	"strings"
)

// Paths that stream their response body.
var streamSuffixes = []string{"/events", "/audio"}

// SkipCompressionForStreams wraps a compression middleware so that
// server-sent events and raw PCM streams are written uncompressed.
// Compressed writers buffer output and break per-chunk flushing.
func SkipCompressionForStreams(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressedHandler := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isStreamRequest(r) {
				next.ServeHTTP(w, r)
				return
			}
			compressedHandler.ServeHTTP(w, r)
		})
	}
}

func isStreamRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	for _, suffix := range streamSuffixes {
		if strings.HasSuffix(r.URL.Path, suffix) {
			return true
		}
	}
	return false
}
