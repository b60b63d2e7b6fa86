/*
 * MIT License
 *
 * Copyright (c) 2026 Yogi Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package engine implements the cooperative single-threaded execution
// context from spec.md §4.1: a task queue consumed by poll/run/run_one and
// their timed variants, an optional background worker goroutine, and a
// Context-bound Timer. Every async operation elsewhere in this module
// (byte transport I/O, message transport, discovery, handshake) completes
// by posting a task to a Context rather than invoking a handler directly,
// so handlers never run concurrently with each other on the same Context
// and never nest. The event bus (package events) does not use a Context:
// it invokes its handlers synchronously.
package engine

import (
	"sync"
	"time"

	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/logging"
)

// Task is a unit of work posted to a Context.
type Task func()

// state values for Context.state.
const (
	stateIdle = iota
	stateRunning
	stateStopping
)

// Context is a single-threaded cooperative executor. Posting to it is
// safe from any goroutine; running it (poll/run/run_one and their timed
// variants, or run_in_background) must only ever happen from one goroutine
// at a time, matching the "no task runs concurrently with another on the
// same context" ordering guarantee in spec §4.1/§5.
type Context struct {
	mu    sync.Mutex
	cond  *sync.Cond
	tasks []Task

	state int

	bgRunning bool
	bgStop    chan struct{}
	bgDone    chan struct{}

	runningWaiters []chan struct{}
	stoppedWaiters []chan struct{}

	log interface {
		Debug(args ...interface{})
	}
}

// New creates an idle Context with an empty task queue.
func New() *Context {
	c := &Context{log: logging.For("engine")}
	c.cond = sync.NewCond(&c.mu)
	c.state = stateIdle
	return c
}

// Post enqueues task for later execution on this Context. Safe from any
// goroutine. Posting while the context is in the stopping state resets it
// to idle, so Run/RunOne wait for and execute tasks again.
func (c *Context) Post(task Task) {
	c.mu.Lock()
	c.tasks = append(c.tasks, task)
	if c.state == stateStopping && len(c.tasks) > 0 {
		c.state = stateIdle
	}
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Context) popTask() (Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tasks) == 0 {
		return nil, false
	}
	t := c.tasks[0]
	c.tasks = c.tasks[1:]
	return t, true
}

// PollOne executes at most one ready task without blocking, returning the
// number of tasks it ran (0 or 1).
func (c *Context) PollOne() int {
	t, ok := c.popTask()
	if !ok {
		return 0
	}
	c.runOne(t)
	return 1
}

// Poll executes all currently ready tasks without blocking, returning how
// many it ran.
func (c *Context) Poll() int {
	n := 0
	for {
		t, ok := c.popTask()
		if !ok {
			break
		}
		c.runOne(t)
		n++
	}
	return n
}

func (c *Context) runOne(t Task) {
	c.markRunning()
	t()
}

func (c *Context) markRunning() {
	c.mu.Lock()
	if c.state != stateRunning {
		c.state = stateRunning
		c.notifyRunning()
	}
	c.mu.Unlock()
}

func (c *Context) notifyRunning() {
	for _, w := range c.runningWaiters {
		close(w)
	}
	c.runningWaiters = nil
}

func (c *Context) notifyStopped() {
	for _, w := range c.stoppedWaiters {
		close(w)
	}
	c.stoppedWaiters = nil
}

// RunOne blocks up to timeout waiting for one task to become ready, then
// executes it, returning the number of tasks run (0 or 1). timeout < 0
// means wait forever until Stop() is called or a task runs.
func (c *Context) RunOne(timeout time.Duration) int {
	if timeout == 0 {
		return c.PollOne()
	}
	t, ok := c.waitForTask(timeout)
	if !ok {
		return 0
	}
	c.runOne(t)
	return 1
}

// Run blocks, executing tasks as they become ready, until timeout elapses
// or Stop() is called, and returns the number of tasks it ran. An empty
// queue does not end it early. timeout < 0 means block until Stop() is
// called.
func (c *Context) Run(timeout time.Duration) int {
	if timeout == 0 {
		return c.Poll()
	}

	n := 0
	deadline, hasDeadline := deadlineOf(timeout)
	for {
		remaining := remainingOf(deadline, hasDeadline)
		if hasDeadline && remaining <= 0 && n > 0 {
			return n
		}
		t, ok := c.waitForTask(remaining)
		if !ok {
			return n
		}
		c.runOne(t)
		n++

		c.mu.Lock()
		stopping := c.state == stateStopping
		c.mu.Unlock()
		if stopping {
			return n
		}
	}
}

func deadlineOf(timeout time.Duration) (time.Time, bool) {
	if timeout < 0 {
		return time.Time{}, false
	}
	return time.Now().Add(timeout), true
}

func remainingOf(deadline time.Time, has bool) time.Duration {
	if !has {
		return -1
	}
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

// waitForTask blocks until a task is available, the context is stopped, or
// timeout elapses (timeout < 0 waits forever). It returns the task and
// whether one was obtained.
func (c *Context) waitForTask(timeout time.Duration) (Task, bool) {
	var expired bool
	var timer *time.Timer
	if timeout >= 0 {
		timer = time.AfterFunc(timeout, func() {
			c.mu.Lock()
			expired = true
			c.cond.Broadcast()
			c.mu.Unlock()
		})
		defer timer.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if len(c.tasks) > 0 {
			t := c.tasks[0]
			c.tasks = c.tasks[1:]
			return t, true
		}
		if c.state == stateStopping {
			return nil, false
		}
		if expired {
			return nil, false
		}
		c.cond.Wait()
	}
}

// RunInBackground spawns exactly one worker goroutine performing Run(-1)
// until Stop() is called. Re-calling while a worker is already running
// reports Busy, per spec §4.1.
func (c *Context) RunInBackground() yerr.Error {
	c.mu.Lock()
	if c.bgRunning {
		c.mu.Unlock()
		return yerr.New(yerr.Busy)
	}
	c.bgRunning = true
	c.bgStop = make(chan struct{})
	c.bgDone = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.bgDone)
		c.Run(-1)
	}()
	return nil
}

// Stop requests the executor return at the next scheduling point. Blocked
// RunOne/Run calls (including the background worker) wake up and return.
func (c *Context) Stop() {
	c.mu.Lock()
	c.state = stateStopping
	c.notifyStopped()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitForRunning blocks the calling goroutine until the Context has
// executed at least one task (entered the "running" state), or timeout
// elapses. Returns nil on success, a Timeout error on expiry.
func (c *Context) WaitForRunning(timeout time.Duration) yerr.Error {
	c.mu.Lock()
	if c.state == stateRunning {
		c.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	c.runningWaiters = append(c.runningWaiters, w)
	c.mu.Unlock()

	return waitChan(w, timeout)
}

// WaitForStopped blocks the calling goroutine until Stop() has been called,
// or timeout elapses. Returns nil on success, a Timeout error on expiry.
func (c *Context) WaitForStopped(timeout time.Duration) yerr.Error {
	c.mu.Lock()
	if c.state == stateStopping {
		c.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	c.stoppedWaiters = append(c.stoppedWaiters, w)
	c.mu.Unlock()

	return waitChan(w, timeout)
}

func waitChan(w chan struct{}, timeout time.Duration) yerr.Error {
	if timeout < 0 {
		<-w
		return nil
	}
	select {
	case <-w:
		return nil
	case <-time.After(timeout):
		return yerr.New(yerr.Timeout)
	}
}
