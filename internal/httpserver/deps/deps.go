package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/synchronizer"
)

// Bookmarks is the synchronizer surface the handlers use.
type Bookmarks interface {
	Snapshot() synchronizer.Snapshot
	Add(ctx context.Context, title, url string) error
	Delete(ctx context.Context, id string) error
	Watch() (<-chan synchronizer.Snapshot, func())
	Live() bool
}

// Sessions is the session provider surface the handlers use.
type Sessions interface {
	SignIn(ctx context.Context, token string) (domain.Identity, error)
	SignOut()
	Current() domain.Identity
}

type Deps struct {
	Logger       logger.Logger
	StartTime    time.Time
	Version      string
	Commit       string
	BuildDate    string
	GoVersion    string
	TimeNow      func() time.Time // for testing, defaults to time.Now
	AllowedHosts []string         // Host headers allowed to access the server
	AllowedCIDRS []string         // IPs allowed to access the server
	TrustProxy   bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)

	StoreKind string           // backend name reported by /api/status
	Store     domain.Pinger    // readiness probe of the bookmark store
	Bookmarks Bookmarks        // synchronizer
	Sessions  Sessions         // session provider
	Resync    func() bool      // requests a snapshot resync, false when one is pending
	RateLimit RateLimitOptions // mutating routes
}

// RateLimitOptions configures the limiter on mutating routes.
type RateLimitOptions struct {
	Burst  int
	PerMin int
}
