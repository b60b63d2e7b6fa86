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

package engine

import (
	"sync"
	"time"

	yerr "github.com/nabbar/yogi/errors"
)

// TimerHandler is invoked with nil on normal expiry, or a Canceled error if
// the timer was canceled or superseded before it fired.
type TimerHandler func(err yerr.Error)

// Timer is a Context-bound one-shot timer (spec §4.1). Starting it while
// already armed completes the previous handler with Canceled before the
// new one arms, matching the single-pending-operation contract used
// throughout this module (message transport sends/receives, event bus).
type Timer struct {
	ctx *Context

	mu      sync.Mutex
	gen     uint64
	armed   bool
	stdTmr  *time.Timer
	handler TimerHandler
}

// NewTimer creates a Timer bound to ctx. Handlers always run as tasks
// posted to ctx, so they never run concurrently with other work on it.
func NewTimer(ctx *Context) *Timer {
	return &Timer{ctx: ctx}
}

// Start arms the timer to fire handler after duration (duration < 0 means
// "never", matching the Infinite sentinel used elsewhere in this module).
// If a handler is already armed, its Canceled completion is posted to the
// Context before the new one is armed.
func (t *Timer) Start(duration time.Duration, handler TimerHandler) {
	t.mu.Lock()
	t.cancelLocked()

	t.gen++
	gen := t.gen
	t.armed = true
	t.handler = handler

	if duration >= 0 {
		t.stdTmr = time.AfterFunc(duration, func() { t.fire(gen, nil) })
	}
	t.mu.Unlock()
}

// Cancel completes the armed handler with Canceled. Returns false if
// nothing was armed.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return false
	}
	t.cancelLocked()
	return true
}

// cancelLocked must be called with t.mu held. It fires the current handler
// (if any) with Canceled and clears the armed state.
func (t *Timer) cancelLocked() {
	if !t.armed {
		return
	}
	if t.stdTmr != nil {
		t.stdTmr.Stop()
		t.stdTmr = nil
	}
	h := t.handler
	t.handler = nil
	t.armed = false
	t.gen++ // invalidate any in-flight fire() for the old generation
	if h != nil {
		t.ctx.Post(func() { h(yerr.New(yerr.Canceled)) })
	}
}

func (t *Timer) fire(gen uint64, err yerr.Error) {
	t.mu.Lock()
	if !t.armed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	h := t.handler
	t.armed = false
	t.handler = nil
	t.stdTmr = nil
	t.mu.Unlock()

	if h != nil {
		t.ctx.Post(func() { h(err) })
	}
}

// Close cancels the timer if armed, as if the owning object were destroyed
// while it was still ticking (spec §4.1: "Destroying a timer while armed
// MUST invoke the handler with canceled").
func (t *Timer) Close() {
	t.Cancel()
}
