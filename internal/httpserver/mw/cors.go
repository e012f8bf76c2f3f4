package mw

import (
	"net/http"
	"net/url"

	"github.com/MrSnakeDoc/marks/internal/utils"
)

// CORS answers preflight requests and sets CORS headers for origins whose
// host is in allowedHosts. An empty list allows any origin.
func CORS(allowedHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !OriginAllowed(origin, allowedHosts) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed reports whether the Origin header's host matches one of
// allowedHosts. An empty list allows everything.
func OriginAllowed(origin string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	for _, pattern := range allowedHosts {
		if utils.MatchHost(u.Host, pattern) || utils.MatchHost(u.Hostname(), pattern) {
			return true
		}
	}
	return false
}
