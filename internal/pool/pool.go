// Package pool implements the fixed-size worker pool that executes publish-
// to-consumer delivery tasks, per spec §5's "a worker pool executes
// publish-to-consumer delivery tasks". It is grounded on the teacher's use
// of golang.org/x/sync/errgroup to supervise a fixed set of long-running
// goroutines (net/rpc/server.go's `tasks errgroup.Group`), generalized from
// a one-goroutine-per-network-service shape to N identical worker
// goroutines draining a shared task channel.
package pool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of delivery work submitted to the pool.
type Task func(ctx context.Context)

// Pool is a fixed-size set of worker goroutines draining a shared,
// bounded task queue.
type Pool struct {
	tasks  chan Task
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a pool of `workers` goroutines, each pulling from a task queue
// of capacity `queueSize`. Submit blocks once the queue is full, which is
// the implementation's natural backpressure mechanism (spec §1: "no flow
// control beyond natural backpressure").
func New(workers, queueSize int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		tasks:  make(chan Task, queueSize),
		group:  group,
		ctx:    gctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			p.run()
			return nil
		})
	}
	return p
}

func (p *Pool) run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(p.ctx)
		}
	}
}

// Submit enqueues `task`, blocking if the queue is full. It returns an error
// if the pool has been stopped.
func (p *Pool) Submit(task Task) error {
	if p.ctx.Err() != nil {
		return fmt.Errorf("pool: submit after stop")
	}
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool: submit after stop")
	case p.tasks <- task:
		return nil
	}
}

// Stop cancels every worker's context and waits for them to return. Submit
// calls racing with Stop fail cleanly instead of blocking forever, since
// workers stop draining the queue as soon as the context is canceled.
func (p *Pool) Stop() {
	p.cancel()
	_ = p.group.Wait()
}
