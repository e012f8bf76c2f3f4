package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

func encodeEvent(ev domain.ChangeEvent) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal change event: %w", err)
	}
	return string(data), nil
}

func decodeEvent(payload string) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := ev.Validate(); err != nil {
		return domain.ChangeEvent{}, err
	}
	return ev, nil
}

// subscription adapts a go-redis PubSub to domain.Subscription.
//
// go-redis reconnects pub/sub transparently and messages published during
// the gap are lost; periodic resync covers that window.
type subscription struct {
	pubsub *redis.PubSub
	logger logger.Logger
	events chan domain.ChangeEvent
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newSubscription(ctx context.Context, client *redis.Client, log logger.Logger) (*subscription, error) {
	pubsub := client.Subscribe(ctx, ChangesChannel)

	// Wait for the subscribe confirmation so no event published after
	// Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChangesChannel, err)
	}

	s := &subscription{
		pubsub: pubsub,
		logger: log,
		events: make(chan domain.ChangeEvent, 64),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *subscription) run() {
	defer close(s.done)
	defer close(s.events)

	messages := s.pubsub.Channel()
	for {
		select {
		case <-s.stopCh:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			ev, err := decodeEvent(msg.Payload)
			if err != nil {
				s.logger.Warn("discarding malformed change event", logger.Error(err))
				continue
			}
			select {
			case s.events <- ev:
			case <-s.stopCh:
				return
			}
		}
	}
}

func (s *subscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stopCh)
		err = s.pubsub.Close()
	})
	<-s.done
	return err
}
