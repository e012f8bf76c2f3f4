// Package connect waits for a backing service to answer before the
// application starts serving.
package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

// PingFunc probes the target once.
type PingFunc func(ctx context.Context) error

// Options defines the retry behaviour while waiting for a backend.
type Options struct {
	Name           string        // backend kind used in logs (ex: "redis", "postgres")
	Target         string        // address shown in logs, never a DSN with credentials
	ConnectTimeout time.Duration // total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // warn after this many attempts
}

// DefaultOptions mirrors the REDIS_* defaults of the configuration.
func DefaultOptions(name, target string) Options {
	return Options{
		Name:           name,
		Target:         target,
		ConnectTimeout: 30 * time.Second,
		RetryInterval:  2 * time.Second,
		MaxWait:        10 * time.Second,
		PingTimeout:    5 * time.Second,
		WarnThreshold:  3,
	}
}

// connectionLogger handles all connection logging.
type connectionLogger struct {
	logger logger.Logger
	name   string
	target string
}

func (cl *connectionLogger) logConnectionStart(timeout time.Duration) {
	cl.logger.Info("connecting to "+cl.name,
		logger.String("addr", cl.target),
		logger.Duration("timeout", timeout))
}

func (cl *connectionLogger) logSuccess(attempts int, elapsed time.Duration) {
	if attempts > 1 {
		cl.logger.Warn("connected to "+cl.name+" after retry",
			logger.String("addr", cl.target),
			logger.Int("attempts", attempts),
			logger.Duration("elapsed", elapsed))
	} else {
		cl.logger.Info("connected to "+cl.name,
			logger.String("addr", cl.target))
	}
}

func (cl *connectionLogger) logTimeout(attempts int, timeout time.Duration, err error) {
	cl.logger.Error(cl.name+" unavailable - failed to connect after timeout",
		logger.String("addr", cl.target),
		logger.Int("attempts", attempts),
		logger.Duration("timeout", timeout),
		logger.Error(err))
}

func (cl *connectionLogger) logRetry(attempt int, remaining, nextRetry time.Duration, warnThreshold int, err error) {
	switch {
	case remaining < 10*time.Second:
		cl.logger.Error(cl.name+" still down - retrying but timeout approaching",
			logger.String("addr", cl.target),
			logger.Int("attempt", attempt),
			logger.Duration("remaining", remaining),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	case attempt <= warnThreshold:
		cl.logger.Warn(cl.name+" connection failed, retrying",
			logger.String("addr", cl.target),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	default:
		cl.logger.Error(cl.name+" still unavailable - connection attempts failing",
			logger.String("addr", cl.target),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", nextRetry),
			logger.Error(err))
	}
}

// Validate ensures all retry settings are usable.
func (o Options) Validate() error {
	if o.ConnectTimeout <= 0 {
		return fmt.Errorf("ConnectTimeout must be > 0, got %v", o.ConnectTimeout)
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("RetryInterval must be > 0, got %v", o.RetryInterval)
	}
	if o.MaxWait <= 0 {
		return fmt.Errorf("MaxWait must be > 0, got %v", o.MaxWait)
	}
	if o.PingTimeout <= 0 {
		return fmt.Errorf("PingTimeout must be > 0, got %v", o.PingTimeout)
	}
	if o.WarnThreshold < 0 {
		return fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold)
	}
	return nil
}

// WithRetry pings until the target answers or ConnectTimeout elapses,
// backing off exponentially between attempts up to MaxWait.
func WithRetry(ctx context.Context, opts Options, ping PingFunc, log logger.Logger) error {
	if err := opts.Validate(); err != nil {
		log.Error("invalid connection options", logger.String("backend", opts.Name), logger.Error(err))
		return err
	}

	cl := &connectionLogger{logger: log, name: opts.Name, target: opts.Target}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	cl.logConnectionStart(opts.ConnectTimeout)
	attempt := 0
	wait := opts.RetryInterval

	for {
		attempt++

		pingCtx, pingCancel := context.WithTimeout(ctx, opts.PingTimeout)
		err := ping(pingCtx)
		pingCancel()

		if err == nil {
			cl.logSuccess(attempt, opts.ConnectTimeout-timeLeft(ctx))
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			cl.logTimeout(attempt, opts.ConnectTimeout, err)
			return fmt.Errorf("%s unavailable at %s after %d attempts (timeout: %v): %w",
				opts.Name, opts.Target, attempt, opts.ConnectTimeout, err)

		case <-timer.C:
			cl.logRetry(attempt, timeLeft(ctx), wait, opts.WarnThreshold, err)
			wait *= 2
			if wait > opts.MaxWait {
				wait = opts.MaxWait
			}
		}
	}
}

// timeLeft returns the remaining time before context deadline.
func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
