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

// Package errors provides the error-code registry shared by every Yogi core
// component: a CodeError (similar in spirit to an HTTP status code) paired
// with a fixed message and wrapped in an Error that keeps a parent chain,
// so callers can branch on Code() instead of string matching.
package errors

import "fmt"

// CodeError is a small numeric classifier for an Error, analogous to an
// HTTP status code. Zero means "no code" (Ok / not an error).
type CodeError uint16

// idMsgFct maps a registered CodeError to its fixed message text.
var idMsgFct = make(map[CodeError]string)

// register associates code with its fixed message and returns code, so the
// const block below can declare and register in a single line per code.
func register(code CodeError, message string) CodeError {
	if _, ok := idMsgFct[code]; ok {
		panic(fmt.Sprintf("errors: code %d registered twice", code))
	}
	idMsgFct[code] = message
	return code
}

// Message returns the fixed message registered for code, or a generic
// fallback if the code is unknown.
func (c CodeError) Message() string {
	if m, ok := idMsgFct[c]; ok {
		return m
	}
	return "unknown error"
}

func (c CodeError) Uint16() uint16 {
	return uint16(c)
}

// Spec §6 error codes, in the order the specification lists them.
var (
	Ok                   = register(0, "ok")
	Canceled             = register(1, "canceled")
	Timeout              = register(2, "timeout")
	Busy                 = register(3, "busy")
	BufferTooSmall       = register(4, "buffer too small")
	RwFailed             = register(5, "read/write failed")
	OpenSocketFailed     = register(6, "open socket failed")
	BindSocketFailed     = register(7, "bind socket failed")
	ListenSocketFailed   = register(8, "listen socket failed")
	AcceptSocketFailed   = register(9, "accept socket failed")
	ConnectSocketFailed  = register(10, "connect socket failed")
	InvalidMagicPrefix   = register(11, "invalid magic prefix")
	IncompatibleVersion  = register(12, "incompatible version")
	DeserializeMsgFailed = register(13, "deserialize message failed")
	LoopbackConnection   = register(14, "loopback connection")
	PasswordMismatch     = register(15, "password mismatch")
	NetNameMismatch      = register(16, "network name mismatch")
	DuplicateBranchName  = register(17, "duplicate branch name")
	DuplicateBranchPath  = register(18, "duplicate branch path")
	TxQueueFull          = register(19, "tx queue full")
	InvalidOperationId   = register(20, "invalid operation id")
	OperationNotRunning  = register(21, "operation not running")
	PayloadTooLarge      = register(22, "payload too large")

	// Internal, not part of the public spec error-code table, used for
	// programmer-error assertions (e.g. a duplicate nonzero send tag).
	Internal = register(500, "internal error")
)
