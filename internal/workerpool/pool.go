// Package workerpool provides a bounded pool for CPU-heavy work that must
// not run on a request-handling goroutine. The contract is submit-and-await:
// Do blocks until the task has run on one of a fixed number of workers.
package workerpool

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("workerpool: closed")

type task struct {
	fn   func() error
	done chan error
}

type Pool struct {
	tasks chan task

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New starts a pool with a fixed number of workers. Workers live until
// Close is called.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	p := &Pool{
		tasks:  make(chan task),
		closed: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case t := <-p.tasks:
			t.done <- t.fn()
		case <-p.closed:
			return
		}
	}
}

// Do submits fn and waits for it to complete, returning its error. If ctx
// is cancelled before a worker picks the task up, Do returns ctx.Err() and
// the task never runs. Once a worker has started the task, Do waits for it.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closed:
		return ErrClosed
	}

	return <-t.done
}

// Close stops all workers. Tasks already started run to completion.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
	p.wg.Wait()
}
