package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg Registrar
	mws []Middleware
}

var registry []entry

// requestTimeout bounds every non-streaming route.
const requestTimeout = 5 * time.Second

// Register a registrar with optional per-route middlewares.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// RegisterAll is called once from NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		if len(e.mws) == 0 {
			e.reg(r, d)
			continue
		}
		sub := r.With(e.mws...) // apply per-route middlewares
		e.reg(sub, d)
	}
}

// guarded applies the CIDR allow-list and host enforcement.
func guarded(d deps.Deps) []Middleware {
	return []Middleware{
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	}
}

// timed is guarded plus the request timeout.
func timed(d deps.Deps) []Middleware {
	return append(guarded(d), middleware.Timeout(requestTimeout))
}

// limited is timed plus the per-IP rate limit for mutating routes.
func limited(d deps.Deps) []Middleware {
	return append(timed(d), mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateLimit.Burst,
		RefillPerIPPerMin: d.RateLimit.PerMin,
		TrustProxy:        d.TrustProxy,
		Logger:            d.Logger,
	}))
}
