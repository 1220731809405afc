package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFabric fans events out through Redis pub/sub so every process
// subscribed to a group sees them.
type RedisFabric struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedisFabric creates a fabric on client. Group names are prefixed with
// prefix to form channel names.
func NewRedisFabric(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisFabric {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFabric{client: client, prefix: prefix, logger: logger.With(zap.String("component", "fabric"))}
}

func (f *RedisFabric) channel(group string) string {
	return f.prefix + group
}

func (f *RedisFabric) Publish(ctx context.Context, group string, event Outbound) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel(group), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", group, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription.
func (f *RedisFabric) Subscribe(ctx context.Context, group string) (Subscription, error) {
	ps := f.client.Subscribe(ctx, f.channel(group))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", group, err)
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, subscriberBufferSize),
		done: make(chan struct{}),
	}
	go sub.forward(ps.Channel())
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	f.logger.Debug("subscribed", zap.String("group", group))
	return sub, nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) forward(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
