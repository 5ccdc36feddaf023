// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the wall clock so that age-based behavior
// (bundle expiry, periodic cleanup) can be tested without sleeping.
// Production code injects [Real]; tests inject [Fake] and move time
// with [FakeClock.Advance].
package clock

import (
	"slices"
	"sync"
	"time"
)

// Clock reports the current time and schedules wakeups.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. Like time.Ticker, C has
// capacity 1 and ticks are dropped when the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}

// Fake returns a FakeClock stopped at initial. Time moves only when
// Advance or Set is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Pending After channels
// and tickers fire when Advance or Set moves time past their deadline.
// It is safe for concurrent use.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

// fakeWaiter is a pending After channel (interval zero) or ticker.
type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
	interval time.Duration
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has been moved
// d past the current time.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.addLocked(&fakeWaiter{deadline: c.current.Add(d), channel: channel})
	return channel
}

// NewTicker returns a Ticker that fires each time the clock crosses a
// multiple of d from now.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{deadline: c.current.Add(d), channel: channel, interval: d}
	c.addLocked(waiter)
	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.waiters = slices.DeleteFunc(c.waiters, func(w *fakeWaiter) bool { return w == waiter })
		},
	}
}

func (c *FakeClock) addLocked(waiter *fakeWaiter) {
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline has been reached, in deadline order. Negative durations are
// ignored; fake time never runs backwards.
func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.fireLocked()
}

// Set jumps the clock to t, firing waiters if t is later than now.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	c.fireLocked()
}

// fireLocked delivers every due tick in deadline order. A ticker whose
// interval was crossed several times fires once and skips ahead to its
// next future deadline; sends to a full channel are dropped, as with
// time.Ticker.
func (c *FakeClock) fireLocked() {
	for {
		var due *fakeWaiter
		for _, waiter := range c.waiters {
			if !waiter.deadline.After(c.current) && (due == nil || waiter.deadline.Before(due.deadline)) {
				due = waiter
			}
		}
		if due == nil {
			return
		}
		select {
		case due.channel <- c.current:
		default:
		}
		if due.interval > 0 {
			missed := c.current.Sub(due.deadline)/due.interval + 1
			due.deadline = due.deadline.Add(missed * due.interval)
		} else {
			c.waiters = slices.DeleteFunc(c.waiters, func(w *fakeWaiter) bool { return w == due })
		}
	}
}

// WaitForTimers blocks until at least n After channels or tickers are
// pending. Tests call it before Advance so that a goroutine's ticker is
// registered before time moves.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.waitersChanged.Wait()
	}
}
