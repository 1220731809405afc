package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-chat/internal/observability"
)

func TestPool_RunsEveryTask(t *testing.T) {
	metrics := observability.NewMetrics()
	pool := NewPool(3, 100, nil, metrics)
	pool.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.True(t, pool.Enqueue(Task{Name: "count", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}
	pool.Stop()

	assert.Equal(t, int32(50), ran.Load())
	assert.Equal(t, int64(50), metrics.Snapshot()["events"]["worker|count|ok"])
}

func TestPool_DropsWhenFull(t *testing.T) {
	metrics := observability.NewMetrics()
	pool := NewPool(1, 1, nil, metrics)

	// not started, so the single queue slot fills
	assert.True(t, pool.Enqueue(Task{Name: "noop", Run: func(context.Context) error { return nil }}))
	assert.False(t, pool.Enqueue(Task{Name: "noop", Run: func(context.Context) error { return nil }}))
	assert.Equal(t, int64(1), metrics.Snapshot()["events"]["worker|noop|dropped"])

	pool.Start(context.Background())
	pool.Stop()
}

func TestPool_FailuresAndPanicsAreContained(t *testing.T) {
	metrics := observability.NewMetrics()
	pool := NewPool(1, 10, nil, metrics)
	pool.Start(context.Background())

	var after atomic.Bool
	pool.Enqueue(Task{Name: "fail", Run: func(context.Context) error { return errors.New("smtp down") }})
	pool.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("boom") }})
	pool.Enqueue(Task{Name: "after", Run: func(context.Context) error {
		after.Store(true)
		return nil
	}})
	pool.Stop()

	assert.True(t, after.Load())
	events := metrics.Snapshot()["events"]
	assert.Equal(t, int64(1), events["worker|fail|failed"])
	assert.Equal(t, int64(1), events["worker|boom|panic"])
}

func TestPool_RejectsAfterStop(t *testing.T) {
	pool := NewPool(1, 10, nil, nil)
	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	assert.False(t, pool.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }}))
}

func TestPool_TaskContextOutlivesCaller(t *testing.T) {
	pool := NewPool(1, 10, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()

	done := make(chan error, 1)
	pool.Enqueue(Task{Name: "ctx", Run: func(taskCtx context.Context) error {
		done <- taskCtx.Err()
		return nil
	}})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	pool.Stop()
}
