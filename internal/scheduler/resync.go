package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Resyncable reloads its state from the backing store.
type Resyncable interface {
	Resync(ctx context.Context) error
}

// Resyncer periodically refreshes the synchronizer snapshot so events lost
// by the change feed are eventually repaired. It also serves manual
// triggers (HTTP endpoint, lost feed).
type Resyncer struct {
	target        Resyncable
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
}

// NewResyncer creates a resyncer. An interval <= 0 disables the periodic
// pass; manual triggers still work.
func NewResyncer(target Resyncable, log logger.Logger, interval time.Duration) *Resyncer {
	return &Resyncer{
		target:        target,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: make(chan struct{}, 1),
	}
}

// Trigger requests a resync without blocking. It returns false when one is
// already pending.
func (r *Resyncer) Trigger() bool {
	select {
	case r.manualTrigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs the resync loop in the background until ctx is done or Stop
// is called.
func (r *Resyncer) Start(ctx context.Context) {
	go func() {
		var tick <-chan time.Time
		if r.interval > 0 {
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				r.run(ctx, "periodic")
			case <-r.manualTrigger:
				r.logger.Info("manual resync triggered")
				r.run(ctx, "manual")
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the resyncer. Safe to call more than once.
func (r *Resyncer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Resyncer) run(ctx context.Context, reason string) {
	start := time.Now()
	if err := r.target.Resync(ctx); err != nil {
		if errors.Is(err, domain.ErrClosed) || errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Error("failed to resync bookmarks",
			logger.String("reason", reason),
			logger.Error(err))
		return
	}
	r.logger.Debug("bookmarks resynced",
		logger.String("reason", reason),
		logger.Duration("took", time.Since(start)))
}
