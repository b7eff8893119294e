// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package controller

import (
	"sync"
	"time"
)

// Tick of a countdown: Remaining seconds of the run identified by Run.
type Tick struct {
	Run       uint64
	Remaining int
}

// Countdown runs timed countdowns in the background, publishing one Tick per interval.
//
// Starting a new countdown cancels the previous one: only ticks of the latest run are published,
// each value N, N-1, ..., 0 exactly once and in order.
type Countdown struct {
	interval time.Duration
	onTick   func(Tick)

	mu     sync.Mutex
	run    uint64
	cancel chan struct{}
	done   chan struct{}
}

// NewCountdown creates a Countdown that calls onTick, from its own goroutine, for every tick.
// The interval between ticks is normally time.Second.
func NewCountdown(interval time.Duration, onTick func(Tick)) *Countdown {
	return &Countdown{interval: interval, onTick: onTick}
}

// Start a countdown from seconds down to 0, canceling any countdown in progress.
// The first tick (seconds) is published immediately. It returns the run id, included in its ticks.
func (c *Countdown) Start(seconds int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.run++
	run := c.run
	cancel := make(chan struct{})
	done := make(chan struct{})
	c.cancel, c.done = cancel, done
	go c.count(run, max(seconds, 0), cancel, done)
	return run
}

// Stop the countdown in progress, if any. After Stop returns no more ticks are published.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// stopLocked cancels the current run and waits for its goroutine to exit, so none of its ticks arrive later.
func (c *Countdown) stopLocked() {
	if c.cancel == nil {
		return
	}
	close(c.cancel)
	<-c.done
	c.cancel, c.done = nil, nil
}

// Wait for the current countdown, if any, to finish or be stopped.
func (c *Countdown) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Countdown) count(run uint64, seconds int, cancel <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for remaining := seconds; remaining >= 0; remaining-- {
		select {
		case <-cancel:
			return
		default:
		}
		c.onTick(Tick{Run: run, Remaining: remaining})
		if remaining == 0 {
			return
		}
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}
	}
}
