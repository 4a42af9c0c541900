// Package workerpool provides a bounded pool of goroutines for fanning out
// per-tenant work without unbounded concurrency.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work identified for logging
type Task struct {
	ID string
	Fn func(context.Context) error
}

// Pool runs submitted tasks on a fixed set of workers over a bounded queue
type Pool struct {
	name    string
	workers int
	queue   chan Task
	logger  *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	completed uint64
	failed    uint64
	rejected  uint64
}

// New creates and starts a pool
func New(name string, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	p := &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info("Worker pool started",
		zap.String("name", name),
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.queue:
			p.execute(id, task)
		}
	}
}

func (p *Pool) execute(workerID int, task Task) {
	start := time.Now()
	err := p.safeRun(task)
	if err != nil {
		atomic.AddUint64(&p.failed, 1)
		p.logger.Error("Task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&p.completed, 1)
	p.logger.Debug("Task completed",
		zap.String("pool", p.name),
		zap.Int("worker_id", workerID),
		zap.String("task_id", task.ID),
		zap.Duration("duration", time.Since(start)))
}

func (p *Pool) safeRun(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Fn(context.Background())
}

// TrySubmit offers a task without blocking, reporting false when the queue
// is full or the pool is stopped
func (p *Pool) TrySubmit(task Task) bool {
	select {
	case <-p.stopCh:
		atomic.AddUint64(&p.rejected, 1)
		return false
	case p.queue <- task:
		return true
	default:
		atomic.AddUint64(&p.rejected, 1)
		return false
	}
}

// Stop shuts the pool down, waiting up to timeout for in-flight tasks
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopCh)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("Worker pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timeout after %v", p.name, timeout)
		}
	})
	return err
}

// Stats returns completed/failed/rejected task counts
func (p *Pool) Stats() (completed, failed, rejected uint64) {
	return atomic.LoadUint64(&p.completed), atomic.LoadUint64(&p.failed), atomic.LoadUint64(&p.rejected)
}
