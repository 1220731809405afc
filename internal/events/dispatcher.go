package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBufferSize is the channel buffer for each subscription.
const subscriberBufferSize = 64

// Fabric lets any process publish an event to every connection subscribed
// to a named group. Delivery is at-least-once for the lifetime of a
// subscription.
type Fabric interface {
	Publish(ctx context.Context, group string, event Outbound) error
	// Subscribe registers for group. The subscription is active when
	// Subscribe returns, so events published afterwards are delivered.
	Subscribe(ctx context.Context, group string) (Subscription, error)
}

// Subscription is a single, non-restartable stream of encoded frames.
type Subscription interface {
	// Events yields frames until the subscription is closed.
	Events() <-chan []byte
	Close() error
}

// MemoryFabric is a process-local Fabric.
type MemoryFabric struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan []byte
	logger      *zap.Logger
}

// NewMemoryFabric creates a fabric. Pass nil logger for a no-op logger.
func NewMemoryFabric(logger *zap.Logger) *MemoryFabric {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryFabric{
		subscribers: make(map[string]map[string]chan []byte),
		logger:      logger.With(zap.String("component", "fabric")),
	}
}

// Publish fans the event out to the group's subscribers without blocking;
// a subscriber whose buffer is full misses the event.
func (f *MemoryFabric) Publish(_ context.Context, group string, event Outbound) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}

	// sends never block, so holding the read lock keeps unsubscribe from
	// closing a channel mid-send
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.subscribers[group] {
		select {
		case ch <- payload:
		default:
			f.logger.Warn("dropped event for slow subscriber",
				zap.String("group", group), zap.String("sub_id", id))
		}
	}
	return nil
}

// Subscribe registers for group; the subscription is removed when ctx ends or Close is called.
func (f *MemoryFabric) Subscribe(ctx context.Context, group string) (Subscription, error) {
	id := uuid.NewString()
	ch := make(chan []byte, subscriberBufferSize)

	f.mu.Lock()
	if _, ok := f.subscribers[group]; !ok {
		f.subscribers[group] = make(map[string]chan []byte)
	}
	f.subscribers[group][id] = ch
	f.mu.Unlock()

	f.logger.Debug("subscriber added", zap.String("group", group), zap.String("sub_id", id))

	sub := &memorySubscription{fabric: f, group: group, id: id, ch: ch, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns the number of live subscriptions for group.
func (f *MemoryFabric) Subscribers(group string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers[group])
}

func (f *MemoryFabric) unsubscribe(group, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[group]
	if !ok {
		return
	}
	ch, exists := subs[id]
	if !exists {
		return
	}
	delete(subs, id)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, group)
	}
	f.logger.Debug("subscriber removed", zap.String("group", group), zap.String("sub_id", id))
}

type memorySubscription struct {
	fabric *MemoryFabric
	group  string
	id     string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan []byte { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.fabric.unsubscribe(s.group, s.id)
	})
	return nil
}
