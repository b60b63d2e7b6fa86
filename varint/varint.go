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

// Package varint implements the message-size field codec from spec.md §4.5:
// a 1-5 byte base-128 length prefix, most-significant group first, bit 7
// marking a continuation byte. Values in [0, 2^35) are representable.
package varint

// MaxLen is the largest number of bytes a size field can occupy.
const MaxLen = 5

// MaxValue is the largest representable size, exclusive: 2^35.
const MaxValue = 1 << 35

// EncodedLen returns the number of bytes Encode would emit for s.
// Sizes at or above MaxValue are outside the codec's range: EncodedLen
// reports 5 for them and Encode keeps only their low 35 bits.
func EncodedLen(s uint64) int {
	switch {
	case s >= 1<<28:
		return 5
	case s >= 1<<21:
		return 4
	case s >= 1<<14:
		return 3
	case s >= 1<<7:
		return 2
	default:
		return 1
	}
}

// Encode writes the size field for s into buf (which must be at least
// EncodedLen(s) bytes) and returns the number of bytes written.
func Encode(s uint64, buf []byte) int {
	n := EncodedLen(s)

	// Emit most-significant 7-bit group first, continuation bit set on
	// every byte but the last.
	for i := 0; i < n; i++ {
		shift := uint((n - 1 - i) * 7)
		group := byte((s >> shift) & 0x7f)
		if i < n-1 {
			group |= 0x80
		}
		buf[i] = group
	}
	return n
}

// Decode reads a size field from the leading bytes of buf, returning the
// decoded value, the number of bytes consumed, and whether decoding
// succeeded. Decoding fails if more than MaxLen bytes are consumed without
// a terminator (the high bit clear).
func Decode(buf []byte) (value uint64, n int, ok bool) {
	for i := 0; i < len(buf) && i < MaxLen; i++ {
		value = (value << 7) | uint64(buf[i]&0x7f)
		if buf[i]&0x80 == 0 {
			return value, i + 1, true
		}
	}
	return 0, 0, false
}

// Decoder accumulates size-field bytes one at a time, matching the
// ring.Buffer.PopUntil byte-at-a-time consumption pattern used by the
// message transport's RX pipeline (spec §4.4).
type Decoder struct {
	acc   uint64
	count int
}

// Reset clears any partially accumulated size field.
func (d *Decoder) Reset() {
	d.acc = 0
	d.count = 0
}

// PushByte folds one more size-field byte into the accumulator. done is
// true once the terminator byte (high bit clear) has been consumed, at
// which point value holds the decoded size. overflow is true if a sixth
// byte was pushed without ever seeing a terminator.
func (d *Decoder) PushByte(b byte) (value uint64, done bool, overflow bool) {
	if d.count >= MaxLen {
		return 0, false, true
	}
	d.acc = (d.acc << 7) | uint64(b&0x7f)
	d.count++
	if b&0x80 == 0 {
		return d.acc, true, false
	}
	return 0, false, false
}
