package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/httpserver"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/scheduler"
	"github.com/MrSnakeDoc/marks/internal/session"
	"github.com/MrSnakeDoc/marks/internal/synchronizer"
	"github.com/MrSnakeDoc/marks/internal/version"
)

type App struct {
	cfg      *config.Config
	logger   logger.Logger
	store    Store
	sessions *session.Provider
	syncer   *synchronizer.Synchronizer
	resyncer *scheduler.Resyncer
	server   *httpserver.Server
}

// New connects the store and wires the synchronizer, the resyncer and the
// HTTP server. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, loggerClient)
	if err != nil {
		return nil, err
	}

	sessions := session.NewProvider(cfg.JWTSecret, cfg.JWTAudience, loggerClient.Named("session"))

	// The resyncer needs the synchronizer and the synchronizer reports feed
	// loss to the resyncer; the callback only fires once Run has started.
	var resyncer *scheduler.Resyncer
	syncer := synchronizer.New(store, loggerClient.Named("sync"), synchronizer.Options{
		Optimistic: cfg.Optimistic,
		OnFeedLost: func() { resyncer.Trigger() },
	})
	resyncer = scheduler.NewResyncer(syncer, loggerClient.Named("resync"), cfg.ResyncInterval)

	d := deps.Deps{
		Logger:       loggerClient,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		TimeNow:      time.Now,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		StoreKind:    cfg.Store,
		Store:        store,
		Bookmarks:    syncer,
		Sessions:     sessions,
		Resync:       resyncer.Trigger,
		RateLimit: deps.RateLimitOptions{
			Burst:  cfg.RateBurst,
			PerMin: cfg.RatePerMin,
		},
	}

	return &App{
		cfg:      cfg,
		logger:   loggerClient,
		store:    store,
		sessions: sessions,
		syncer:   syncer,
		resyncer: resyncer,
		server:   httpserver.New(cfg, loggerClient, d),
	}, nil
}

// Run serves until ctx is done or the HTTP server fails, then shuts
// everything down in reverse order.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting Marks %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	if a.cfg.SessionToken != "" {
		if id, err := a.sessions.SignIn(ctx, a.cfg.SessionToken); err != nil {
			a.logger.Warn("startup session token rejected, starting signed out", logger.Error(err))
		} else {
			a.logger.Info("signed in from configuration", logger.String("user_id", id.ID))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	syncDone := make(chan error, 1)
	go func() { syncDone <- a.syncer.Run(runCtx, a.sessions) }()

	a.resyncer.Start(runCtx)
	a.logger.Info("resyncer started", logger.Duration("interval", a.cfg.ResyncInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		runErr = err
	case err := <-syncDone:
		syncDone <- err
		runErr = errors.New("synchronizer stopped unexpectedly")
		if err != nil {
			runErr = fmt.Errorf("synchronizer stopped: %w", err)
		}
	}

	a.resyncer.Stop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer stop()
	if err := a.server.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to stop server: %w", err))
	}

	cancel()
	if err := <-syncDone; err != nil {
		a.logger.Warn("synchronizer returned an error", logger.Error(err))
	}
	if err := a.syncer.Close(); err != nil {
		a.logger.Warn("failed to close synchronizer", logger.Error(err))
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warnf("failed to close store: %v", err)
	} else {
		a.logger.Info("✅ Store closed cleanly")
	}

	if runErr != nil {
		return runErr
	}
	a.logger.Info("✅ Marks stopped cleanly")
	return nil
}
