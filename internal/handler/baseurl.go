package handler

import (
	"net/http"
	"strings"
)

// requestBaseURL works out the origin the browser used, for building links
// that are emailed back to the user. A fronting proxy is trusted to set
// X-Forwarded-Proto and X-Forwarded-Host; without them the request's own
// scheme and Host are used, and fallback only when even Host is missing.
func requestBaseURL(r *http.Request, fallback string) string {
	proto := firstValue(r.Header.Get("X-Forwarded-Proto"))
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}

	if host := firstValue(r.Header.Get("X-Forwarded-Host")); host != "" {
		return proto + "://" + host
	}
	if r.Host != "" {
		return proto + "://" + r.Host
	}
	return strings.TrimRight(fallback, "/")
}

// firstValue returns the first entry of a comma-separated header.
func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
