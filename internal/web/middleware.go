package web

import (
	"net/http"
	"strings"
)

// ProtocolMiddleware prevents HTTP/3 QUIC protocol issues in cloud environments.
// Requests under one of the stream prefixes also get headers that keep
// long-lived connections on HTTP/1.1 semantics.
func ProtocolMiddleware(streamPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Disable HTTP/3 QUIC protocol advertising globally
			w.Header().Set("Alt-Svc", "clear")

			for _, prefix := range streamPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					w.Header().Set("Connection", "keep-alive")
					w.Header().Set("X-Force-HTTP1", "true")
					break
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
