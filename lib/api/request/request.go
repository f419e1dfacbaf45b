package request

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of RemoteAddr. Behind a proxy the chi
// RealIP middleware has already replaced it with the forwarded address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
