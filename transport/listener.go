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

	yerr "github.com/nabbar/yogi/errors"
)

// AcceptHandler receives a freshly accepted connection, or a non-nil err.
type AcceptHandler func(conn net.Conn, err yerr.Error)

// Listener wraps a net.Listener with a timed, cancelable AcceptAsync,
// matching the "multi-interface accept loop" from
// original_source/yogi-core/src/network/tcp_listener.cc. One Listener
// binds one address; running several on different interfaces is the
// caller's responsibility (spec §4.3, §4.6).
type Listener struct {
	ln net.Listener

	mu     sync.Mutex
	closed bool
}

// Listen opens a TCP listener on addr ("host:port", port 0 for ephemeral).
// v6Only, when addr is an IPv6 wildcard, sets IPV6_V6ONLY independently of
// SO_REUSEADDR -- the REDESIGN FLAG fix from spec §9 (the original's
// SetOptionV6Only bug applied reuse_address instead of the v6-only option).
func Listen(addr string, v6Only bool) (*Listener, yerr.Error) {
	lc := net.ListenConfig{
		Control: controlFunc(v6Only),
	}
	ln, err := lc.Listen(nil, "tcp", addr) //nolint:staticcheck // explicit nil is intentional; no cancellation at bind time
	if err != nil {
		return nil, yerr.Wrap(yerr.ListenSocketFailed, err)
	}
	return &Listener{ln: ln}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// AcceptAsync accepts one connection, blocking up to timeout
// (timeout < 0 == infinite), and invokes handler on its own goroutine's
// result -- callers are expected to Post it onto their engine.Context
// themselves if ordering against other Context work matters.
func (l *Listener) AcceptAsync(timeout time.Duration, handler AcceptHandler) {
	go func() {
		if tl, ok := l.ln.(*net.TCPListener); ok && timeout >= 0 {
			_ = tl.SetDeadline(time.Now().Add(timeout))
		}
		conn, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed {
				handler(nil, yerr.New(yerr.Canceled))
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				handler(nil, yerr.New(yerr.Timeout))
				return
			}
			handler(nil, yerr.Wrap(yerr.AcceptSocketFailed, err))
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		handler(conn, nil)
	}()
}

// Close cancels any in-flight Accept and releases the listening socket.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	_ = l.ln.Close()
}

// DialTimeout connects to addr, blocking up to timeout (a distinct budget
// from the per-transfer timeout used once the session is established,
// per spec §4.3).
func DialTimeout(addr string, timeout time.Duration) (net.Conn, yerr.Error) {
	d := net.Dialer{Timeout: timeout}
	if timeout < 0 {
		d.Timeout = 0
	}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, yerr.New(yerr.Timeout)
		}
		return nil, yerr.Wrap(yerr.ConnectSocketFailed, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Guard cancels an in-flight Listener.AcceptAsync or a connector's dial
// when the guard itself is closed -- the "connection-guard objects cancel
// in-flight accepts/connects on destruction" contract from spec §4.3.
type Guard struct {
	mu     sync.Mutex
	cancel func()
}

// NewGuard wraps cancel, a function that aborts the in-flight operation it
// guards (e.g. (*Listener).Close, or closing a dial's net.Conn).
func NewGuard(cancel func()) *Guard {
	return &Guard{cancel: cancel}
}

// Close invokes the guarded cancel function at most once.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel == nil {
		return
	}
	c := g.cancel
	g.cancel = nil
	c()
}
