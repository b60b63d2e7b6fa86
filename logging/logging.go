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

// Package logging provides the component-scoped structured logger every
// Yogi core package logs through. The actual sinks (console, file, hook)
// are the out-of-scope logging-sinks collaborator from spec.md §1; this
// package only defines the logger contract and a sane default.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Field name constants, mirrored from the teacher's Entry field names so
// that structured fields stay consistent across packages.
const (
	FieldComponent = "component"
	FieldBranch    = "branch"
	FieldPeer      = "peer"
	FieldOperation = "operation"
	FieldError     = "error"
)

var (
	mu   sync.Mutex
	root = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// SetRoot replaces the package-wide root logger. Intended for the embedding
// process to install its own sinks; the core never calls this itself.
func SetRoot(l *logrus.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}

// For returns a component-scoped logger, e.g. logging.For("msgtransport").
func For(component string) logrus.FieldLogger {
	mu.Lock()
	l := root
	mu.Unlock()
	return l.WithField(FieldComponent, component)
}
