package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxDialDelay = 30 * time.Second

// DialRabbitMQ connects to the broker with exponential backoff, giving up
// after attempts tries or when ctx is cancelled.
func DialRabbitMQ(ctx context.Context, url string, attempts int, delay time.Duration, logger *zap.Logger) (*amqp091.Connection, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	sleep := delay

	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			logger.Info("connected to rabbitmq", zap.Int("attempt", i))
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		logger.Warn("rabbitmq dial failed",
			zap.Int("attempt", i),
			zap.Duration("sleep", sleep),
			zap.Error(err))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		sleep = backoff(sleep)
	}

	return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", attempts, lastErr)
}

func backoff(current time.Duration) time.Duration {
	next := current * 2
	if next <= 0 || next > maxDialDelay {
		return maxDialDelay
	}
	return next
}
