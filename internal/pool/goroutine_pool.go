// Package pool runs detached background work on a bounded set of goroutines.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work. ctx is the pool's own context and is only
// canceled when a shutdown deadline expires.
type Task func(ctx context.Context) error

type job struct {
	name string
	task Task
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		Workers:   4,
		QueueSize: 64,
	}
}

// GoroutinePool is a fixed set of workers draining a bounded queue.
type GoroutinePool struct {
	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	workers sync.WaitGroup

	idleMu  sync.Mutex
	idle    *sync.Cond
	pending int

	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewGoroutinePool starts the workers.
func NewGoroutinePool(config GoroutinePoolConfig, logger *zap.Logger) *GoroutinePool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &GoroutinePool{
		queue:  make(chan job, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(zap.String("component", "goroutine_pool")),
	}
	p.idle = sync.NewCond(&p.idleMu)

	for i := 0; i < config.Workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a task without blocking. It returns ErrPoolFull when the
// queue and every worker are busy.
func (p *GoroutinePool) Submit(name string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.idleMu.Lock()
	p.pending++
	p.idleMu.Unlock()

	select {
	case p.queue <- job{name: name, task: task}:
		p.submitted.Add(1)
		return nil
	default:
		p.done()
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *GoroutinePool) worker() {
	defer p.workers.Done()

	for j := range p.queue {
		p.active.Add(1)
		err := p.execute(j)
		p.active.Add(-1)

		if err != nil {
			p.failed.Add(1)
			p.logger.Warn("background task failed", zap.String("task", j.name), zap.Error(err))
		} else {
			p.completed.Add(1)
		}
		p.done()
	}
}

func (p *GoroutinePool) execute(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background task panicked",
				zap.String("task", j.name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("task %s panicked: %v", j.name, r)
		}
	}()
	return j.task(p.ctx)
}

func (p *GoroutinePool) done() {
	p.idleMu.Lock()
	p.pending--
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.idleMu.Unlock()
}

// Wait blocks until every submitted task has finished.
func (p *GoroutinePool) Wait() {
	p.idleMu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.idleMu.Unlock()
}

// Close stops accepting tasks and drains the queue. When ctx expires first,
// running tasks are canceled and ctx.Err() is returned once they exit.
func (p *GoroutinePool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.logger.Warn("pool shutdown deadline exceeded, canceling running tasks")
		p.cancel()
		<-drained
		return ctx.Err()
	}
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Active:    int(p.active.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats contains pool statistics.
type GoroutinePoolStats struct {
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
