// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package sequence provides a single-goroutine task runner. All state
// owned by a component confined to a Runner is touched by exactly one
// goroutine, so the component needs no locks: callers on other
// goroutines hand work over with Post and receive results through
// whatever channel or callback the task captures.
package sequence

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Post after Close has been called.
var ErrClosed = errors.New("sequence: runner closed")

// Runner executes posted tasks one at a time, in post order, on a
// dedicated goroutine.
type Runner struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewRunner starts a Runner. The caller must Close it to release the
// goroutine.
func NewRunner() *Runner {
	r := &Runner{done: make(chan struct{})}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

// Post enqueues task. It never blocks on task execution; the queue is
// unbounded.
func (r *Runner) Post(task func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.queue = append(r.queue, task)
	r.cond.Signal()
	return nil
}

// PostAndWait enqueues task and blocks until it has run. Calling this
// from within a task posted to the same Runner would deadlock.
func (r *Runner) PostAndWait(task func()) error {
	finished := make(chan struct{})
	if err := r.Post(func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	<-finished
	return nil
}

// Close stops accepting tasks, runs everything already queued, and
// waits for the goroutine to exit. Idempotent.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.cond.Signal()
	r.mu.Unlock()
	<-r.done
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.closed {
			r.mu.Unlock()
			return
		}
		task := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		task()
	}
}
