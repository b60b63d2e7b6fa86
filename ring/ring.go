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

// Package ring implements the single-producer/single-consumer lock-free
// byte ring buffer from spec.md §4.2, ported from
// original_source/yogi-core/src/utils/ringbuffer.h. Storage size is
// capacity+1 (the classic leave-one-slot-empty trick) so that
// write_idx == read_idx is an unambiguous "empty" marker. The producer
// only ever mutates the write index; the consumer only ever mutates the
// read index, so the two may run on different goroutines without a lock.
package ring

import (
	"sync/atomic"
)

const cacheLineSize = 64

// Buffer is a fixed-capacity SPSC byte queue exposing zero-copy gather
// buffers for I/O layers (spec §4.2).
type Buffer struct {
	writeIdx uint64
	_        [cacheLineSize - 8]byte // keep read/write indices on separate cache lines
	readIdx  uint64
	_        [cacheLineSize - 8]byte

	capacity uint64
	data     []byte
}

// NewBuffer allocates a ring buffer that can hold up to capacity bytes.
func NewBuffer(capacity uint64) *Buffer {
	return &Buffer{
		capacity: capacity,
		data:     make([]byte, capacity+1),
	}
}

// Capacity returns the buffer's usable capacity in bytes.
func (b *Buffer) Capacity() uint64 {
	return b.capacity
}

func (b *Buffer) storageSize() uint64 {
	return b.capacity + 1
}

func (b *Buffer) nextIndex(idx uint64) uint64 {
	idx++
	if idx == b.storageSize() {
		return 0
	}
	return idx
}

func (b *Buffer) availableForRead(writeIdx, readIdx uint64) uint64 {
	if writeIdx >= readIdx {
		return writeIdx - readIdx
	}
	return b.storageSize() - readIdx + writeIdx
}

func (b *Buffer) availableForWrite(writeIdx, readIdx uint64) uint64 {
	return b.capacity - b.availableForRead(writeIdx, readIdx)
}

// AvailableForRead returns the number of bytes currently available to Read.
// Called from the consumer side; it observes the producer's write index
// with acquire ordering.
func (b *Buffer) AvailableForRead() uint64 {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx)
	return b.availableForRead(wi, ri)
}

// AvailableForWrite returns the number of bytes currently free for Write.
// Called from the producer side; it observes the consumer's read index
// with acquire ordering.
func (b *Buffer) AvailableForWrite() uint64 {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx)
	return b.availableForWrite(wi, ri)
}

// Empty reports whether the buffer currently holds no data.
func (b *Buffer) Empty() bool {
	return b.AvailableForRead() == 0
}

// Full reports whether the buffer currently has no free space.
func (b *Buffer) Full() bool {
	return b.AvailableForWrite() == 0
}

// Front returns the next byte that would be read, without consuming it.
// Valid only when the buffer is non-empty.
func (b *Buffer) Front() byte {
	ri := atomic.LoadUint64(&b.readIdx)
	return b.data[ri]
}

// Pop discards the front byte. Valid only when the buffer is non-empty.
func (b *Buffer) Pop() {
	ri := atomic.LoadUint64(&b.readIdx)
	atomic.StoreUint64(&b.readIdx, b.nextIndex(ri))
}

// Write copies up to len(p) bytes into the buffer, returning the number of
// bytes actually written (0 if the buffer is full). Never blocks.
func (b *Buffer) Write(p []byte) int {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx) // acquire: consumer's published index

	n := minU64(uint64(len(p)), b.availableForWrite(wi, ri))
	if n == 0 {
		return 0
	}

	b.copyIn(wi, p[:n])
	atomic.StoreUint64(&b.writeIdx, (wi+n)%b.storageSize()) // release
	return int(n)
}

func (b *Buffer) copyIn(wi uint64, p []byte) {
	ss := b.storageSize()
	first := minU64(uint64(len(p)), ss-wi)
	copy(b.data[wi:wi+first], p[:first])
	if uint64(len(p)) > first {
		copy(b.data[0:], p[first:])
	}
}

// Read copies up to len(p) bytes out of the buffer into p, returning the
// number of bytes actually read.
func (b *Buffer) Read(p []byte) int {
	wi := atomic.LoadUint64(&b.writeIdx) // acquire: producer's published index
	ri := atomic.LoadUint64(&b.readIdx)

	n := minU64(uint64(len(p)), b.availableForRead(wi, ri))
	if n == 0 {
		return 0
	}

	b.copyOut(ri, p[:n])
	atomic.StoreUint64(&b.readIdx, (ri+n)%b.storageSize()) // release
	return int(n)
}

func (b *Buffer) copyOut(ri uint64, p []byte) {
	ss := b.storageSize()
	first := minU64(uint64(len(p)), ss-ri)
	copy(p[:first], b.data[ri:ri+first])
	if uint64(len(p)) > first {
		copy(p[first:], b.data[0:uint64(len(p))-first])
	}
}

// Discard drops up to n bytes from the front of the buffer without copying
// them anywhere, returning the number of bytes actually discarded.
func (b *Buffer) Discard(n uint64) uint64 {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx)

	m := minU64(n, b.availableForRead(wi, ri))
	if m == 0 {
		return 0
	}
	atomic.StoreUint64(&b.readIdx, (ri+m)%b.storageSize())
	return m
}

// FirstReadArray returns the longest contiguous slice of currently buffered
// data that does not wrap past the end of storage, for zero-copy I/O.
// Callers MUST NOT read more than len(result) bytes from it, and must call
// CommitFirstReadArray with however many bytes they actually consumed.
func (b *Buffer) FirstReadArray() []byte {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx)

	avail := b.availableForRead(wi, ri)
	if avail == 0 {
		return nil
	}
	toEnd := b.storageSize() - ri
	n := minU64(avail, toEnd)
	return b.data[ri : ri+n]
}

// CommitFirstReadArray advances the read index by n bytes, which must be
// <= len(FirstReadArray()).
func (b *Buffer) CommitFirstReadArray(n uint64) {
	ri := atomic.LoadUint64(&b.readIdx)
	atomic.StoreUint64(&b.readIdx, (ri+n)%b.storageSize())
}

// FirstWriteArray returns the longest contiguous free slice that does not
// wrap past the end of storage, for zero-copy I/O. Callers MUST NOT write
// more than len(result) bytes into it, and must call CommitFirstWriteArray
// with however many bytes they actually wrote.
func (b *Buffer) FirstWriteArray() []byte {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx)

	avail := b.availableForWrite(wi, ri)
	if avail == 0 {
		return nil
	}
	toEnd := b.storageSize() - wi
	n := minU64(avail, toEnd)
	return b.data[wi : wi+n]
}

// CommitFirstWriteArray advances the write index by n bytes, which must be
// <= len(FirstWriteArray()).
func (b *Buffer) CommitFirstWriteArray(n uint64) {
	wi := atomic.LoadUint64(&b.writeIdx)
	atomic.StoreUint64(&b.writeIdx, (wi+n)%b.storageSize())
}

// PopUntil reads one byte at a time, calling pred(byte) for each, stopping
// (and consuming the triggering byte) the first time pred returns true.
// Used by the size-field decoder (spec §4.4, §4.5).
func (b *Buffer) PopUntil(pred func(byte) bool) {
	wi := atomic.LoadUint64(&b.writeIdx)
	ri := atomic.LoadUint64(&b.readIdx)

	for b.availableForRead(wi, ri) > 0 {
		by := b.data[ri]
		ri = b.nextIndex(ri)
		if pred(by) {
			break
		}
	}

	atomic.StoreUint64(&b.readIdx, ri)
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
