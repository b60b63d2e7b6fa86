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

package errors

import "fmt"

// Error is the error type returned across every Yogi core package. It
// carries a CodeError so callers can switch on a stable identity instead of
// matching message text, and an optional parent for wrapping a lower-level
// cause (e.g. the *net.OpError behind a RwFailed).
type Error interface {
	error

	// Code returns the CodeError this Error was raised with.
	Code() CodeError

	// IsCode reports whether this Error (or any of its parents) carries code.
	IsCode(code CodeError) bool

	// Unwrap exposes the parent error for errors.Is/errors.As interop.
	Unwrap() error
}

type ers struct {
	code   CodeError
	parent error
}

// New creates an Error with the given code and no parent.
func New(code CodeError) Error {
	return &ers{code: code}
}

// Wrap creates an Error with the given code, wrapping parent as its cause.
// If parent is nil, it behaves like New.
func Wrap(code CodeError, parent error) Error {
	return &ers{code: code, parent: parent}
}

func (e *ers) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s: %s", e.code.Message(), e.parent.Error())
	}
	return e.code.Message()
}

func (e *ers) Code() CodeError {
	return e.code
}

func (e *ers) Unwrap() error {
	return e.parent
}

func (e *ers) IsCode(code CodeError) bool {
	for err := error(e); err != nil; {
		if ce, ok := err.(interface{ Code() CodeError }); ok && ce.Code() == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

// Is lets errors.Is(err, errors.New(errors.Timeout)) match by code alone,
// mirroring how the teacher's registry compares codes when traces/messages
// are both absent.
func (e *ers) Is(target error) bool {
	if other, ok := target.(*ers); ok {
		return e.code == other.code
	}
	return false
}

// CodeOf returns the CodeError carried by err: Ok (0) if err is nil, and
// Internal if err does not implement the Code() accessor.
func CodeOf(err error) CodeError {
	if err == nil {
		return Ok
	}
	if ce, ok := err.(interface{ Code() CodeError }); ok {
		return ce.Code()
	}
	return Internal
}
