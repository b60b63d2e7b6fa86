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

package engine_test

import (
	"time"

	yerr "github.com/nabbar/yogi/errors"

	"github.com/nabbar/yogi/engine"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Timer", func() {
	It("completes with ok on the owning context after its duration", func() {
		ctx := engine.New()
		tm := engine.NewTimer(ctx)

		var got yerr.Error
		fired := false
		tm.Start(time.Millisecond, func(err yerr.Error) {
			got, fired = err, true
		})

		Expect(ctx.RunOne(time.Second)).To(Equal(1))
		Expect(fired).To(BeTrue())
		Expect(got).To(BeNil())
	})

	It("completes with canceled when started infinite then canceled", func() {
		ctx := engine.New()
		tm := engine.NewTimer(ctx)

		var got yerr.Error
		tm.Start(-1, func(err yerr.Error) { got = err })
		Expect(tm.Cancel()).To(BeTrue())

		Expect(ctx.RunOne(time.Second)).To(Equal(1))
		Expect(got).NotTo(BeNil())
		Expect(got.Code()).To(Equal(yerr.Canceled))

		Expect(tm.Cancel()).To(BeFalse())
	})

	It("cancels the previous handler exactly once when re-armed while pending", func() {
		ctx := engine.New()
		tm := engine.NewTimer(ctx)

		firstCanceled := 0
		tm.Start(-1, func(err yerr.Error) {
			if err != nil && err.Code() == yerr.Canceled {
				firstCanceled++
			}
		})

		secondFired := false
		tm.Start(time.Millisecond, func(err yerr.Error) { secondFired = true })

		Expect(ctx.Run(50 * time.Millisecond)).To(BeNumerically(">=", 2))
		Expect(firstCanceled).To(Equal(1))
		Expect(secondFired).To(BeTrue())
	})
})
