// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a deterministic Clock pinned to initial. Time moves
// only through Advance and Set. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a Clock under explicit test control. AfterFunc
// callbacks fire synchronously, in deadline order, inside Advance.
// Do not call Advance from within a callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to run when the clock advances past d from
// now. If d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{deadline: c.current.Add(d), callback: f}
	c.pending = append(c.pending, timer)
	c.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.fired || timer.stopped {
			return false
		}
		timer.stopped = true
		return true
	}}
}

// Advance moves the clock forward by d, firing due callbacks in
// deadline order. Callbacks run without the clock lock held, so they
// may schedule further timers; a newly scheduled timer whose deadline
// falls within the same Advance window also fires.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	for {
		timer := c.nextDueLocked(target)
		if timer == nil {
			break
		}
		c.current = timer.deadline
		timer.fired = true
		c.mu.Unlock()
		timer.callback()
		c.mu.Lock()
	}
	c.current = target
	c.mu.Unlock()
}

// Set jumps the clock to t without firing anything. Stepping backward
// is allowed; pending timers keep their absolute deadlines.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// nextDueLocked returns the earliest live timer due at or before
// target, or nil. Fired and stopped timers are dropped as a side
// effect.
func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	live := c.pending[:0]
	for _, timer := range c.pending {
		if !timer.fired && !timer.stopped {
			live = append(live, timer)
		}
	}
	c.pending = live
	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].deadline.Before(c.pending[j].deadline)
	})
	if len(c.pending) == 0 || c.pending[0].deadline.After(target) {
		return nil
	}
	return c.pending[0]
}
