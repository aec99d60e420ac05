package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/kazuya8222/embld-revenue/internal/metrics"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("worker pool stopped")

type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed set of goroutines. Tasks receive the
// pool context, which is cancelled when Shutdown gives up waiting.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	jobs   chan Task
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	log    *zap.Logger
}

func NewPool(n int, log *zap.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{jobs: make(chan Task, 1024), ctx: ctx, cancel: cancel, log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				if p.ctx.Err() != nil {
					// Shutdown timed out; drop what is still queued.
					continue
				}
				p.run(job)
			}
		}()
	}
	return p
}

func (p *Pool) run(job Task) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker task panic", zap.Any("panic", rec))
		}
	}()
	job(p.ctx)
}

// Submit enqueues f, blocking while the queue is full.
func (p *Pool) Submit(f Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	metrics.WorkerQueueDepth.Inc()
	p.jobs <- f
	return nil
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx ends first, running tasks see their context cancelled, tasks not yet
// started are dropped, and ctx's error is returned without waiting further.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		p.log.Warn("worker pool shutdown timed out", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Stop drains queued tasks and waits for the workers to exit.
func (p *Pool) Stop() {
	_ = p.Shutdown(context.Background())
}
