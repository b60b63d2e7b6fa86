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

// Package events implements the per-branch event observer of spec.md §4.8:
// an ordered queue of branch_discovered/branch_queried/connect_finished/
// connection_lost events, delivered to at most one pending AwaitEvent
// caller at a time.
package events

import (
	"encoding/json"

	yerr "github.com/nabbar/yogi/errors"

	"github.com/google/uuid"
)

// Kind identifies which of the four branch events (spec §4.8) occurred.
type Kind int

const (
	BranchDiscovered Kind = iota
	BranchQueried
	ConnectFinished
	ConnectionLost
)

func (k Kind) String() string {
	switch k {
	case BranchDiscovered:
		return "branch_discovered"
	case BranchQueried:
		return "branch_queried"
	case ConnectFinished:
		return "connect_finished"
	case ConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Event is one entry in a branch's event queue: the peer uuid, which kind
// of event this is, its outcome (nil on success), and a JSON-encodable
// detail payload.
type Event struct {
	UUID   uuid.UUID
	Kind   Kind
	Result yerr.Error
	Detail any
}

// AwaitHandler receives the outcome of a pending AwaitEvent call. err is
// the call-level status (Canceled, BufferTooSmall, ...); ev is only
// meaningful when err is nil or BufferTooSmall. n is the number of JSON
// bytes written into the caller's buffer (excluding the NUL terminator).
type AwaitHandler func(err yerr.Error, ev Event, n int)

type pendingAwait struct {
	buf     []byte
	handler AwaitHandler
}

// Queue is the per-branch ordered sequence of pending events plus the
// single pending observer slot (spec §4.8). Zero value is unusable; use
// NewQueue.
type Queue struct {
	pending []Event
	await   *pendingAwait
	closed  bool
}

// NewQueue creates an empty event queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends ev to the queue, delivering it immediately if an
// AwaitEvent call is currently pending.
func (q *Queue) Push(ev Event) {
	if q.closed {
		return
	}
	if q.await != nil {
		a := q.await
		q.await = nil
		deliver(a, ev)
		return
	}
	q.pending = append(q.pending, ev)
}

// AwaitEvent registers handler to receive the next event, writing its
// JSON detail into buf (truncated with a NUL-terminated prefix and
// BufferTooSmall if it doesn't fit). If an event is already queued, it is
// delivered synchronously, within this call. Installing a new AwaitEvent
// while one is already pending completes the previous one with Canceled
// first (spec §4.8).
func (q *Queue) AwaitEvent(buf []byte, handler AwaitHandler) {
	if q.await != nil {
		prev := q.await
		q.await = nil
		prev.handler(yerr.New(yerr.Canceled), Event{}, 0)
	}

	if len(q.pending) > 0 {
		ev := q.pending[0]
		q.pending = q.pending[1:]
		deliver(&pendingAwait{buf: buf, handler: handler}, ev)
		return
	}

	if q.closed {
		handler(yerr.New(yerr.Canceled), Event{}, 0)
		return
	}

	q.await = &pendingAwait{buf: buf, handler: handler}
}

// CancelAwaitEvent completes the pending AwaitEvent (if any) with
// Canceled. Returns OperationNotRunning if nothing was pending.
func (q *Queue) CancelAwaitEvent() yerr.Error {
	if q.await == nil {
		return yerr.New(yerr.OperationNotRunning)
	}
	a := q.await
	q.await = nil
	a.handler(yerr.New(yerr.Canceled), Event{}, 0)
	return nil
}

// Close completes any pending AwaitEvent with Canceled and makes every
// future AwaitEvent call fail the same way (spec §4.8 "destroying the
// branch completes the pending one with canceled").
func (q *Queue) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.pending = nil
	if q.await != nil {
		a := q.await
		q.await = nil
		a.handler(yerr.New(yerr.Canceled), Event{}, 0)
	}
}

// deliver JSON-encodes ev.Detail into a.buf, truncating with a
// NUL-terminated prefix and reporting BufferTooSmall if it overflows.
func deliver(a *pendingAwait, ev Event) {
	blob, err := json.Marshal(ev.Detail)
	if err != nil {
		blob = []byte("null")
	}

	if len(a.buf) == 0 {
		if len(blob) == 0 {
			a.handler(nil, ev, 0)
			return
		}
		a.handler(yerr.New(yerr.BufferTooSmall), ev, 0)
		return
	}

	if len(blob)+1 <= len(a.buf) {
		n := copy(a.buf, blob)
		a.buf[n] = 0
		a.handler(nil, ev, n)
		return
	}

	n := len(a.buf) - 1
	copy(a.buf, blob[:n])
	a.buf[n] = 0
	a.handler(yerr.New(yerr.BufferTooSmall), ev, n)
}
