package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/sessionkit"
)

// ClientIP attaches the peer address of each request to its context so the
// Engine can throttle failed rotations per client. Forwarding headers are
// not consulted; put a proxy-aware handler in front when behind one.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(sessionkit.WithClientIP(r.Context(), host)))
	})
}
