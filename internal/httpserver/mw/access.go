package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/utils"
)

func passthrough(next http.Handler) http.Handler { return next }

func forbid(w http.ResponseWriter, r *http.Request, log logger.Logger, reason, subject string) {
	log.Debug("request rejected",
		logger.String("reason", reason),
		logger.String("subject", subject),
		logger.String("path", r.URL.Path))
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

// AllowOnlyCIDRS lets through clients whose IP matches one of the allowed
// IPs or CIDRs. An empty list disables the check.
// trustProxy should be true only behind a trusted reverse proxy/tunnel
// (e.g., cloudflared), since proxy headers decide the client IP.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	m := utils.NewIPMatcher(allowed)
	if m.IsEmpty() {
		return passthrough
	}
	log = log.Named("cidr")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				forbid(w, r, log, "ip not allowed", ip)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// EnforceHost lets through requests whose Host header matches one of
// allowedHosts ("*.example.com" wildcards included). An empty list disables
// the check.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		return passthrough
	}
	log = log.Named("host")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range allowedHosts {
				if utils.MatchHost(r.Host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}
			forbid(w, r, log, "host not allowed", r.Host)
		})
	}
}
