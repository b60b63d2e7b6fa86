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

package transport

import (
	"net"
	"sync"
	"time"

	"github.com/nabbar/yogi/engine"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/logging"

	"github.com/sirupsen/logrus"
)

// TCP wraps a net.Conn (expected to be a *net.TCPConn) as a ByteTransport.
// Each blocking Read/Write runs on its own goroutine so the owning
// engine.Context is never blocked by socket I/O; the goroutine posts its
// result back to the Context before returning.
type TCP struct {
	ctx     *engine.Context
	conn    net.Conn
	timeout time.Duration // per-operation I/O timeout; < 0 == infinite

	mu         sync.Mutex
	limit      int // transceive byte limit, <= 0 == unlimited
	closed     bool
	closedByUs bool
	lastErr    yerr.Error
	log        logrus.FieldLogger
}

// NewTCP wraps conn as a ByteTransport bound to ctx, using timeout as the
// per-operation I/O deadline (timeout < 0 disables the deadline). On
// success it enables TCP_NODELAY, per spec §4.3.
func NewTCP(ctx *engine.Context, conn net.Conn, timeout time.Duration) *TCP {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &TCP{
		ctx:     ctx,
		conn:    conn,
		timeout: timeout,
		log:     logging.For("transport.tcp"),
	}
}

func (t *TCP) SetTransceiveByteLimit(n int) {
	t.mu.Lock()
	t.limit = n
	t.mu.Unlock()
}

func (t *TCP) truncate(buf []byte) []byte {
	t.mu.Lock()
	limit := t.limit
	t.mu.Unlock()
	if limit > 0 && len(buf) > limit {
		return buf[:limit]
	}
	return buf
}

func (t *TCP) LastError() yerr.Error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// failLocked latches err as the sticky last error and marks the transport
// closed, iff it isn't already latched. Must be called with t.mu held.
func (t *TCP) failLocked(err yerr.Error) yerr.Error {
	if t.lastErr == nil {
		t.lastErr = err
	}
	t.closed = true
	return t.lastErr
}

func (t *TCP) checkFailed() (yerr.Error, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.lastErr, true
	}
	return nil, false
}

func (t *TCP) SendSome(buf []byte, handler SendHandler) {
	if err, failed := t.checkFailed(); failed {
		t.ctx.Post(func() { handler(err, 0) })
		return
	}

	b := t.truncate(buf)
	go func() {
		if t.timeout >= 0 {
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.timeout))
		} else {
			_ = t.conn.SetWriteDeadline(time.Time{})
		}
		n, err := t.conn.Write(b)
		status := t.classify(err)
		if status != nil {
			t.mu.Lock()
			status = t.failLocked(status)
			t.mu.Unlock()
		}
		t.ctx.Post(func() { handler(status, n) })
	}()
}

func (t *TCP) RecvSome(buf []byte, handler RecvHandler) {
	if err, failed := t.checkFailed(); failed {
		t.ctx.Post(func() { handler(err, 0) })
		return
	}

	b := t.truncate(buf)
	go func() {
		if t.timeout >= 0 {
			_ = t.conn.SetReadDeadline(time.Now().Add(t.timeout))
		} else {
			_ = t.conn.SetReadDeadline(time.Time{})
		}
		n, err := t.conn.Read(b)
		status := t.classify(err)
		if status != nil {
			t.mu.Lock()
			status = t.failLocked(status)
			t.mu.Unlock()
		}
		t.ctx.Post(func() { handler(status, n) })
	}()
}

func (t *TCP) SendAll(buf []byte, handler func(err yerr.Error)) {
	sendAllLoop(t, buf, 0, handler)
}

func (t *TCP) RecvAll(buf []byte, handler func(err yerr.Error)) {
	recvAllLoop(t, buf, 0, handler)
}

// classify maps a net.Conn I/O error onto the spec's status vocabulary.
// nil stays nil (success, possibly a legitimate short read/write).
func (t *TCP) classify(err error) yerr.Error {
	if err == nil {
		return nil
	}

	t.mu.Lock()
	byUs := t.closedByUs
	t.mu.Unlock()
	if byUs {
		return yerr.New(yerr.Canceled)
	}

	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return yerr.New(yerr.Timeout)
	}

	return yerr.Wrap(yerr.RwFailed, err)
}

func (t *TCP) Close() {
	t.mu.Lock()
	if t.closedByUs {
		t.mu.Unlock()
		return
	}
	t.closedByUs = true
	t.failLocked(yerr.New(yerr.Canceled))
	t.mu.Unlock()

	_ = t.conn.Close()
}
