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

package ring_test

import (
	"github.com/nabbar/yogi/ring"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Buffer", func() {
	It("reports empty/full and available space correctly", func() {
		b := ring.NewBuffer(4)
		Expect(b.Empty()).To(BeTrue())
		Expect(b.AvailableForWrite()).To(Equal(uint64(4)))

		Expect(b.Write([]byte{1, 2, 3, 4})).To(Equal(4))
		Expect(b.Full()).To(BeTrue())
		Expect(b.Write([]byte{5})).To(Equal(0), "full buffer rejects further writes")
	})

	It("reads back exactly what was written, in order", func() {
		b := ring.NewBuffer(8)
		Expect(b.Write([]byte{1, 2, 3})).To(Equal(3))

		out := make([]byte, 3)
		Expect(b.Read(out)).To(Equal(3))
		Expect(out).To(Equal([]byte{1, 2, 3}))
		Expect(b.Empty()).To(BeTrue())
	})

	It("wraps correctly across the storage boundary", func() {
		b := ring.NewBuffer(4)
		Expect(b.Write([]byte{1, 2, 3})).To(Equal(3))

		out := make([]byte, 2)
		Expect(b.Read(out)).To(Equal(2)) // consume 1,2 -> read idx now 2

		Expect(b.Write([]byte{4, 5, 6})).To(Equal(3)) // wraps past the end

		rest := make([]byte, 4)
		Expect(b.Read(rest)).To(Equal(4))
		Expect(rest).To(Equal([]byte{3, 4, 5, 6}))
	})

	It("exposes contiguous gather buffers for zero-copy I/O", func() {
		b := ring.NewBuffer(4)
		Expect(b.Write([]byte{1, 2, 3})).To(Equal(3))

		out := make([]byte, 2)
		Expect(b.Read(out)).To(Equal(2))
		Expect(b.Write([]byte{4, 5})).To(Equal(2))

		wa := b.FirstWriteArray()
		Expect(len(wa)).To(BeNumerically("<=", 1))

		ra := b.FirstReadArray()
		Expect(ra).NotTo(BeEmpty())
		copy(ra, ra)
		b.CommitFirstReadArray(uint64(len(ra)))
	})

	It("discards bytes without delivering them", func() {
		b := ring.NewBuffer(8)
		Expect(b.Write([]byte{1, 2, 3, 4, 5})).To(Equal(5))
		Expect(b.Discard(3)).To(Equal(uint64(3)))

		out := make([]byte, 2)
		Expect(b.Read(out)).To(Equal(2))
		Expect(out).To(Equal([]byte{4, 5}))
	})

	It("PopUntil stops at (and consumes) the triggering byte", func() {
		b := ring.NewBuffer(8)
		Expect(b.Write([]byte{0x81, 0x02, 0xFF, 0xFF})).To(Equal(4))

		var seen []byte
		b.PopUntil(func(by byte) bool {
			seen = append(seen, by)
			return by&0x80 == 0
		})
		Expect(seen).To(Equal([]byte{0x81, 0x02}))
		Expect(b.AvailableForRead()).To(Equal(uint64(2)))
	})
})
