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

package events_test

import (
	"github.com/nabbar/yogi/events"
	yerr "github.com/nabbar/yogi/errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue", func() {
	It("delivers an event synchronously when one is already queued before AwaitEvent", func() {
		q := events.NewQueue()
		id := uuid.New()
		q.Push(events.Event{UUID: id, Kind: events.BranchDiscovered, Detail: map[string]int{"port": 1234}})

		var got events.Event
		var gotErr yerr.Error
		buf := make([]byte, 256)
		q.AwaitEvent(buf, func(err yerr.Error, ev events.Event, n int) {
			gotErr = err
			got = ev
		})

		Expect(gotErr).To(BeNil())
		Expect(got.UUID).To(Equal(id))
		Expect(got.Kind).To(Equal(events.BranchDiscovered))
	})

	It("delivers a later Push to an already-pending AwaitEvent", func() {
		q := events.NewQueue()
		var got events.Event
		delivered := false
		q.AwaitEvent(make([]byte, 256), func(err yerr.Error, ev events.Event, n int) {
			delivered = true
			got = ev
		})
		Expect(delivered).To(BeFalse())

		id := uuid.New()
		q.Push(events.Event{UUID: id, Kind: events.ConnectFinished})

		Expect(delivered).To(BeTrue())
		Expect(got.UUID).To(Equal(id))
		Expect(got.Kind).To(Equal(events.ConnectFinished))
	})

	It("cancels a previous AwaitEvent when a new one replaces it", func() {
		q := events.NewQueue()
		var firstErr yerr.Error
		q.AwaitEvent(make([]byte, 256), func(err yerr.Error, ev events.Event, n int) {
			firstErr = err
		})

		q.AwaitEvent(make([]byte, 256), func(err yerr.Error, ev events.Event, n int) {})

		Expect(firstErr).NotTo(BeNil())
		Expect(firstErr.IsCode(yerr.Canceled)).To(BeTrue())
	})

	It("reports operation_not_running when canceling with nothing pending", func() {
		q := events.NewQueue()
		err := q.CancelAwaitEvent()
		Expect(err).NotTo(BeNil())
		Expect(err.IsCode(yerr.OperationNotRunning)).To(BeTrue())
	})

	It("completes a pending AwaitEvent with canceled", func() {
		q := events.NewQueue()
		var gotErr yerr.Error
		q.AwaitEvent(make([]byte, 256), func(err yerr.Error, ev events.Event, n int) {
			gotErr = err
		})

		Expect(q.CancelAwaitEvent()).To(BeNil())
		Expect(gotErr).NotTo(BeNil())
		Expect(gotErr.IsCode(yerr.Canceled)).To(BeTrue())
	})

	It("reports buffer_too_small with a NUL-terminated prefix when the JSON overflows", func() {
		q := events.NewQueue()
		q.Push(events.Event{Kind: events.BranchQueried, Detail: map[string]string{"name": "a-very-long-branch-name-indeed"}})

		buf := make([]byte, 8)
		var gotErr yerr.Error
		var gotN int
		q.AwaitEvent(buf, func(err yerr.Error, ev events.Event, n int) {
			gotErr = err
			gotN = n
		})

		Expect(gotErr).NotTo(BeNil())
		Expect(gotErr.IsCode(yerr.BufferTooSmall)).To(BeTrue())
		Expect(gotN).To(Equal(len(buf) - 1))
		Expect(buf[gotN]).To(Equal(byte(0)))
	})

	It("completes the pending AwaitEvent with canceled on Close", func() {
		q := events.NewQueue()
		var gotErr yerr.Error
		q.AwaitEvent(make([]byte, 256), func(err yerr.Error, ev events.Event, n int) {
			gotErr = err
		})

		q.Close()
		Expect(gotErr).NotTo(BeNil())
		Expect(gotErr.IsCode(yerr.Canceled)).To(BeTrue())
	})

	It("fails AwaitEvent immediately once closed", func() {
		q := events.NewQueue()
		q.Close()

		var gotErr yerr.Error
		q.AwaitEvent(make([]byte, 256), func(err yerr.Error, ev events.Event, n int) {
			gotErr = err
		})
		Expect(gotErr).NotTo(BeNil())
		Expect(gotErr.IsCode(yerr.Canceled)).To(BeTrue())
	})
})
