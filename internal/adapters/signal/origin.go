package signal

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginAllowed reports whether r comes from the server's own origin or one
// of allowed. A request without an Origin header is not a browser
// cross-site request.
func OriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}
