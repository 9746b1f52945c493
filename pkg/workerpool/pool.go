// Package workerpool runs submitted tasks on a bounded set of goroutines.
// Submit never blocks: once the waiting queue reaches its limit the task is
// rejected and the caller decides what to shed.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jworkerpool "github.com/JekaMas/workerpool"

	"p2p-nebula/nebula/pkg/logger"
)

var (
	ErrQueueFull = errors.New("task queue is full")
	ErrClosed    = errors.New("worker pool is shut down")
)

// Task is one unit of work.
type Task func()

// Stats is a point-in-time view of the pool counters.
type Stats struct {
	Name      string
	Workers   int
	Active    int64
	Completed int64
	Panicked  int64
	Rejected  int64
	Pending   int
}

type Pool struct {
	name      string
	workers   int
	queueSize int
	wp        *jworkerpool.WorkerPool

	active    atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	mu      sync.RWMutex
	running bool
}

// New creates a pool of at most workers goroutines. Up to queueSize tasks
// may wait for a free worker; zero or less leaves the queue unbounded.
func New(name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		name:      name,
		workers:   workers,
		queueSize: queueSize,
		wp:        jworkerpool.New(workers),
		running:   true,
	}
}

func (p *Pool) run(task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)

	// One misbehaving task must not take the process down with it.
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			logger.Sugar.Errorf("[WorkerPool] task panicked: pool=%s panic=%v", p.name, r)
		}
	}()

	task()
	p.completed.Add(1)
}

// Submit queues task without blocking. The queue limit is checked against
// the waiting count, so concurrent submitters may overshoot it slightly.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		p.rejected.Add(1)
		return ErrClosed
	}
	if p.queueSize > 0 && p.wp.WaitingQueueSize() >= p.queueSize {
		p.rejected.Add(1)
		return fmt.Errorf("%w: pool=%s capacity=%d", ErrQueueFull, p.name, p.queueSize)
	}
	p.wp.Submit(context.Background(), func() error { p.run(task); return nil }, 0)
	return nil
}

func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Workers:   p.workers,
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
		Pending:   p.wp.WaitingQueueSize(),
	}
}

func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Shutdown stops accepting tasks, lets queued and in-flight tasks finish and
// waits for the workers to exit.
func (p *Pool) Shutdown() {
	if p.stop() {
		p.wp.StopWait()
	}
}

// ShutdownWithTimeout is Shutdown bounded by timeout. Workers still busy
// when it expires keep running in the background.
func (p *Pool) ShutdownWithTimeout(timeout time.Duration) error {
	if !p.stop() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wp.StopWait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("worker pool %s: shutdown timeout after %s", p.name, timeout)
	}
}

// stop flips the pool to closed. Submit holds the read lock, so no task can
// reach the underlying pool after this returns.
func (p *Pool) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return false
	}
	p.running = false
	return true
}
