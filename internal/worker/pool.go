// Package worker runs fire-and-forget background tasks on a bounded pool.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/observability"
)

const defaultTaskTimeout = 30 * time.Second

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool executes tasks on a fixed number of goroutines fed by a bounded
// queue. Enqueue never blocks: when the queue is full the task is dropped.
type Pool struct {
	workers     int
	tasks       chan Task
	taskTimeout time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with workers goroutines and room for queueSize pending tasks.
func NewPool(workers, queueSize int, logger *zap.Logger, metrics *observability.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers:     workers,
		tasks:       make(chan Task, queueSize),
		taskTimeout: defaultTaskTimeout,
		logger:      logger.With(zap.String("component", "worker_pool")),
		metrics:     metrics,
	}
}

// Start launches the workers. Tasks run with a context derived from ctx.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.tasks)))
}

// Enqueue schedules task and reports whether it was accepted.
func (p *Pool) Enqueue(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.logger.Warn("task rejected after stop", zap.String("task", task.Name))
		p.metrics.RecordEvent("worker", task.Name, "rejected")
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		p.logger.Warn("task queue full, dropping task", zap.String("task", task.Name))
		p.metrics.RecordEvent("worker", task.Name, "dropped")
		return false
	}
}

// Stop refuses new tasks and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.execute(ctx, id, task)
	}
}

func (p *Pool) execute(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.String("task", task.Name), zap.Any("panic", r))
			p.metrics.RecordEvent("worker", task.Name, "panic")
		}
	}()

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.taskTimeout)
	defer cancel()

	if err := task.Run(taskCtx); err != nil {
		p.logger.Warn("task failed", zap.String("task", task.Name), zap.Int("worker", id), zap.Error(err))
		p.metrics.RecordEvent("worker", task.Name, "failed")
		return
	}
	p.metrics.RecordEvent("worker", task.Name, "ok")
}
