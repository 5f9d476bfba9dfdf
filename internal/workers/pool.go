// Package workers runs plugin invocations on a fixed number of goroutines.
package workers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSaturated = errors.New("workers: queue is full")
	ErrClosed    = errors.New("workers: pool is stopped")
)

// Task is one unit of work. Meta travels untouched to the Result.
type Task struct {
	ID   string
	Run  func(ctx context.Context) error
	Meta any
}

type Result struct {
	Task     Task
	Err      error
	Duration time.Duration
}

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

type Pool struct {
	size    int
	timeout time.Duration
	log     *zap.Logger

	mu      sync.RWMutex
	closed  bool
	tasks   chan Task
	results chan Result
	wg      sync.WaitGroup
	busy    atomic.Int64
	drained chan struct{}
}

// New creates a pool of size workers with room for queue pending tasks.
// A zero timeout runs tasks without a deadline.
func New(size, queue int, timeout time.Duration, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	return &Pool{
		size:    size,
		timeout: timeout,
		log:     log,
		tasks:   make(chan Task, queue),
		results: make(chan Result, queue+size),
		drained: make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go func() {
			defer p.wg.Done()
			for t := range p.tasks {
				p.results <- p.run(ctx, t)
			}
		}()
	}
	p.log.Debug("worker pool started", zap.Int("workers", p.size), zap.Int("queue", cap(p.tasks)))
}

// Submit queues t without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrSaturated
	}
}

// Results delivers one Result per executed task. It is closed by Stop.
func (p *Pool) Results() <-chan Result { return p.results }

// Stop rejects new tasks and waits for queued ones until ctx is done.
// Results is closed once the last worker exits, which may be after Stop
// gave up on a task that never returns.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
		go func() {
			p.wg.Wait()
			close(p.results)
			close(p.drained)
		}()
	}
	p.mu.Unlock()

	select {
	case <-p.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers: %d tasks still running, %d queued: %w",
			p.busy.Load(), len(p.tasks), ctx.Err())
	}
}

func (p *Pool) run(ctx context.Context, t Task) (res Result) {
	res.Task = t
	start := time.Now()
	p.busy.Add(1)
	defer p.busy.Add(-1)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			res.Err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		res.Duration = time.Since(start)
	}()
	res.Err = t.Run(ctx)
	return res
}
