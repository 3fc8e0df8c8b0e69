package worker

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is closed")
)

type Task interface {
	Execute(ctx context.Context)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context)

func (f TaskFunc) Execute(ctx context.Context) { f(ctx) }

// Pool runs queued tasks on a resizable set of workers.
type Pool struct {
	mu     sync.Mutex
	size   int
	closed bool
	tasks  chan Task
	kill   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(speed int, queue int) *Pool {
	if speed < 1 {
		speed = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		tasks:  make(chan Task, queue),
		kill:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	pool.Resize(speed)
	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task.Execute(p.ctx)
		case <-p.kill:
			return
		}
	}
}

func (p *Pool) Resize(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for p.size < n {
		p.size++
		p.wg.Add(1)
		go p.worker()
	}
	for p.size > n && p.size > 1 {
		p.size--
		p.kill <- struct{}{}
	}
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Submit queues the task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits until the queue is drained or ctx is done,
// in which case the context handed to running tasks is canceled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
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
		return ctx.Err()
	}
}
