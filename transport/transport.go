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

// Package transport implements the abstract Byte Transport contract from
// spec.md §4.3: chunked, ordered, reliable byte delivery with a
// per-operation timeout, on top of an underlying net.Conn. This package
// never blocks the caller's goroutine past the call that submits the
// operation. ByteTransport completions are posted to the owning
// engine.Context; Listener.AcceptAsync instead runs its handler on its own
// goroutine.
package transport

import (
	yerr "github.com/nabbar/yogi/errors"
)

// SendHandler reports the outcome of a SendSome/SendAll call: err is nil on
// success, n is the number of bytes actually transferred.
type SendHandler func(err yerr.Error, n int)

// RecvHandler reports the outcome of a RecvSome/RecvAll call: err is nil on
// success, n is the number of bytes actually transferred.
type RecvHandler func(err yerr.Error, n int)

// ByteTransport is the abstract contract from spec §4.3. A single socket
// belongs to exactly one ByteTransport; two ByteTransports never share one.
type ByteTransport interface {
	// SendSome writes some of buf, completing handler with the number of
	// bytes actually written. Short writes are legal.
	SendSome(buf []byte, handler SendHandler)

	// RecvSome reads some bytes into buf, completing handler with the
	// number of bytes actually read. Short reads are legal.
	RecvSome(buf []byte, handler RecvHandler)

	// SendAll re-issues SendSome until buf is fully transferred or a
	// non-success status arises.
	SendAll(buf []byte, handler func(err yerr.Error))

	// RecvAll re-issues RecvSome until buf is fully transferred or a
	// non-success status arises.
	RecvAll(buf []byte, handler func(err yerr.Error))

	// SetTransceiveByteLimit truncates any single SendSome/RecvSome buffer
	// to at most n bytes before it reaches the OS, so tests can force
	// fragmentation (spec §4.3, §GLOSSARY "Transceive byte limit"). n <= 0
	// disables the limit.
	SetTransceiveByteLimit(n int)

	// Close shuts down both directions and cancels pending I/O. Every
	// subsequently submitted operation fails fast with the stored error.
	Close()

	// LastError returns the sticky error latched by the first fatal
	// failure, or nil if the transport is still healthy.
	LastError() yerr.Error
}

// sendAllLoop and recvAllLoop are shared by every ByteTransport
// implementation's SendAll/RecvAll so the retry-until-done policy lives in
// one place.
func sendAllLoop(t ByteTransport, buf []byte, sent int, handler func(err yerr.Error)) {
	if sent >= len(buf) {
		handler(nil)
		return
	}
	t.SendSome(buf[sent:], func(err yerr.Error, n int) {
		if err != nil {
			handler(err)
			return
		}
		sendAllLoop(t, buf, sent+n, handler)
	})
}

func recvAllLoop(t ByteTransport, buf []byte, recvd int, handler func(err yerr.Error)) {
	if recvd >= len(buf) {
		handler(nil)
		return
	}
	t.RecvSome(buf[recvd:], func(err yerr.Error, n int) {
		if err != nil {
			handler(err)
			return
		}
		recvAllLoop(t, buf, recvd+n, handler)
	})
}
