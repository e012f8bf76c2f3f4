package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	keepAliveInterval    = 90 * time.Second
)

// listener turns NOTIFY payloads into change events for one subscriber.
//
// pq.Listener reconnects on its own, but notifications sent while it was
// disconnected are gone. When that happens the subscription ends so the
// consumer takes a fresh snapshot instead of drifting.
type listener struct {
	pq     *pq.Listener
	logger logger.Logger
	events chan domain.ChangeEvent
	stopCh chan struct{}
	done   chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
}

func newListener(ctx context.Context, dsn string, log logger.Logger) (*listener, error) {
	l := &listener{
		logger: log,
		events: make(chan domain.ChangeEvent, 64),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	l.pq = pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, l.onConnectionEvent)

	listenErr := make(chan error, 1)
	go func() { listenErr <- l.pq.Listen(NotifyChannel) }()

	select {
	case err := <-listenErr:
		if err != nil {
			l.closeListener()
			return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
		}
	case <-ctx.Done():
		l.closeListener()
		return nil, ctx.Err()
	}

	l.logger.Info("listening for bookmark changes", logger.String("channel", NotifyChannel))
	go l.run()
	return l, nil
}

func (l *listener) onConnectionEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		l.logger.Debug("connected to postgres notification channel")
	case pq.ListenerEventDisconnected:
		l.logger.Warn("disconnected from postgres notification channel", logger.Error(err))
	case pq.ListenerEventReconnected:
		l.logger.Info("reconnected to postgres notification channel")
	case pq.ListenerEventConnectionAttemptFailed:
		l.logger.Warn("postgres notification connection attempt failed", logger.Error(err))
	}
}

func (l *listener) run() {
	defer close(l.done)
	defer close(l.events)
	defer l.closeListener()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return

		case n, ok := <-l.pq.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Sent after a reconnect: anything in between is lost.
				l.logger.Warn("notification connection was re-established, ending subscription")
				return
			}
			ev, err := decodeNotification(n.Extra)
			if err != nil {
				l.logger.Warn("discarding malformed bookmark notification", logger.Error(err))
				continue
			}
			select {
			case l.events <- ev:
			case <-l.stopCh:
				return
			}

		case <-ticker.C:
			go func() {
				if err := l.pq.Ping(); err != nil {
					l.logger.Debug("notification listener ping failed", logger.Error(err))
				}
			}()
		}
	}
}

func (l *listener) Events() <-chan domain.ChangeEvent { return l.events }

// Close stops the subscription and waits for the reader to exit.
func (l *listener) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.done
	return nil
}

func (l *listener) closeListener() {
	l.closeOnce.Do(func() {
		if err := l.pq.Close(); err != nil {
			l.logger.Debug("failed to close notification listener", logger.Error(err))
		}
	})
}
