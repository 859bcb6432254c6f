// Package workerpool is a small bounded goroutine pool: a fixed number of
// workers drain a shared task queue, and callers group related tasks into a
// Room to wait on or collect their results. It carries no knowledge of the
// catalog-traversal domain; pkg/traversal/parallel builds the ready-queue
// and node-counter scheduling on top of it.
package workerpool

import (
	"fmt"
	"runtime"
)

// Pool runs a fixed number of worker goroutines against a shared, bounded
// task queue.
type Pool struct {
	config    Config
	taskQueue chan task
}

// Config controls pool sizing.
type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

// Room is a group of related tasks submitted to the same Pool. Results are
// delivered on an internal channel and collected with Collect or Next.
type Room[T any] struct {
	pool       *Pool
	resultChan chan T
}

type task struct {
	run func()
}

// New creates a Pool and starts its workers immediately. A WorkerCount < 1
// defaults to 3x NumCPU, matching the teacher pool's sizing heuristic.
func New(config Config) *Pool {
	if config.WorkerCount < 1 {
		config.WorkerCount = runtime.NumCPU() * 3
	}
	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	p := &Pool{
		config:    config,
		taskQueue: make(chan task, config.GlobalBuffer),
	}
	for i := 0; i < config.WorkerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for t := range p.taskQueue {
		t.run()
	}
}

// NewRoom creates a Room bound to this pool. size is the expected number of
// tasks the room will submit; it sizes the result channel so Submit never
// blocks on a slow collector as long as callers call Collect/Next eventually.
func NewRoom[T any](p *Pool, size int) *Room[T] {
	return &Room[T]{
		pool:       p,
		resultChan: make(chan T, size),
	}
}

// Submit enqueues job, blocking if the pool's global queue is full.
// The result of job is sent to the room's result channel.
func (r *Room[T]) Submit(job func() T) {
	r.pool.taskQueue <- task{run: func() {
		r.resultChan <- job()
	}}
}

// TrySubmit enqueues job without blocking, returning an error if the pool's
// global queue is saturated.
func (r *Room[T]) TrySubmit(job func() T) error {
	if len(r.pool.taskQueue) == cap(r.pool.taskQueue) {
		return fmt.Errorf("workerpool: global queue is full (capacity %d)", cap(r.pool.taskQueue))
	}
	r.Submit(job)
	return nil
}

// Collect drains exactly n results submitted to this room. Callers that know
// the exact count up front (as the traversal engine does: one result per
// enqueued fetch) use this instead of closing the channel.
func (r *Room[T]) Collect(n int) []T {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, <-r.resultChan)
	}
	return out
}

// Next blocks for a single result. Used by callers that interleave
// submission and collection, such as the parallel traversal's ready loop.
func (r *Room[T]) Next() T {
	return <-r.resultChan
}
