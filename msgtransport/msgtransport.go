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

// Package msgtransport implements the length-framed Message Transport from
// spec.md §4.4, layering whole-message send/receive semantics on top of a
// transport.ByteTransport and a pair of ring.Buffers, ported from
// original_source/yogi-core/src/network/msg_transport.cc/.h.
package msgtransport

import (
	"sync"

	"github.com/nabbar/yogi/engine"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/logging"
	"github.com/nabbar/yogi/ring"
	"github.com/nabbar/yogi/transport"
	"github.com/nabbar/yogi/varint"

	"github.com/sirupsen/logrus"
)

// OperationTag identifies a send submitted via SendAsync for later
// cancellation via CancelSend. Zero means "not cancelable".
type OperationTag uint64

// SendHandler reports the outcome of a send: err is nil on success.
type SendHandler func(err yerr.Error)

// RecvHandler reports the outcome of a receive: err is nil on success, and
// size is the full message size (even when err is BufferTooSmall and only
// a prefix was copied into the caller's buffer).
type RecvHandler func(err yerr.Error, size int)

// pendingSend is a FIFO entry queued when the fast path in TrySend/
// SendAsync can't immediately fit the message into the TX ring.
type pendingSend struct {
	tag     OperationTag
	bytes   []byte
	handler SendHandler
}

// Transport layers length-framed messages over a transport.ByteTransport,
// per spec §4.4. Owns a TX and an RX ring.Buffer. One Transport wraps
// exactly one ByteTransport.
type Transport struct {
	bt  transport.ByteTransport
	ctx *engine.Context
	log logrus.FieldLogger

	txMu                    sync.Mutex
	txRing                  *ring.Buffer
	pendingSends            []pendingSend
	sendToTransportRunning  bool
	lastTxErr               yerr.Error

	rxMu                        sync.Mutex
	rxRing                      *ring.Buffer
	receiveFromTransportRunning bool
	lastRxErr                   yerr.Error
	sizeDec                     varint.Decoder
	sizeKnown                   bool
	sizeValue                   uint64
	pendingRecvBuf              []byte
	pendingRecvHandler          RecvHandler

	started bool
}

// New creates a Message Transport over bt, using ctx to post every
// completion handler, with txCapacity/rxCapacity byte rings for the
// outgoing and incoming message streams.
func New(ctx *engine.Context, bt transport.ByteTransport, txCapacity, rxCapacity uint64) *Transport {
	return &Transport{
		bt:     bt,
		ctx:    ctx,
		log:    logging.For("msgtransport"),
		txRing: ring.NewBuffer(txCapacity),
		rxRing: ring.NewBuffer(rxCapacity),
	}
}

// Start begins continuous RX refill. Safe to call exactly once.
func (t *Transport) Start() {
	t.rxMu.Lock()
	if t.started {
		t.rxMu.Unlock()
		return
	}
	t.started = true
	t.rxMu.Unlock()

	t.receiveSomeBytesFromTransport()
}

// TrySend attempts the synchronous, non-blocking fast path: it serializes
// msg's size field and payload straight into the TX ring iff the transport
// hasn't already failed, there's room, and no sends are already queued,
// then kicks off the TX drain. Returns false if any gate fails, including
// when a TX error is already latched; TrySend does not return that error
// itself (LastTxError does).
func (t *Transport) TrySend(msg []byte) bool {
	t.txMu.Lock()
	defer t.txMu.Unlock()
	return t.trySendLocked(msg)
}

// trySendLocked requires t.txMu held.
func (t *Transport) trySendLocked(msg []byte) bool {
	if t.lastTxErr != nil {
		return false
	}
	if len(t.pendingSends) > 0 {
		return false
	}
	return t.writeMsgLocked(msg)
}

// oversizeLocked reports whether msg's framed size could never fit the TX
// ring no matter how empty it gets, i.e. queuing it would wait forever.
// Requires t.txMu held.
func (t *Transport) oversizeLocked(msg []byte) bool {
	fieldLen := varint.EncodedLen(uint64(len(msg)))
	return uint64(fieldLen+len(msg)) > t.txRing.Capacity()
}

// writeMsgLocked writes msg's size field + payload into the TX ring if
// there's room, kicking off the drain on success. Requires t.txMu held.
func (t *Transport) writeMsgLocked(msg []byte) bool {
	fieldLen := varint.EncodedLen(uint64(len(msg)))
	if t.txRing.AvailableForWrite() < uint64(fieldLen+len(msg)) {
		return false
	}

	var fieldBuf [varint.MaxLen]byte
	n := varint.Encode(uint64(len(msg)), fieldBuf[:])
	written := t.txRing.Write(fieldBuf[:n])
	if written != n {
		panic("msgtransport: size field write unexpectedly short")
	}
	written = t.txRing.Write(msg)
	if written != len(msg) {
		panic("msgtransport: payload write unexpectedly short")
	}

	t.sendSomeBytesToTransportLocked()
	return true
}

// SendAsync always eventually invokes handler(status) on the context.
// It tries the same fast path as TrySend; on failure it takes a snapshot
// of msg, appends it to the pending-sends FIFO under tag (0 meaning "not
// cancelable"), and returns. Passing a duplicate nonzero tag that is
// already queued is a programmer error (panics), matching the original's
// debug-checked contract. msg whose framed size exceeds the TX ring's
// total capacity is rejected immediately with PayloadTooLarge rather than
// queued, since it could never drain no matter how empty the ring gets.
func (t *Transport) SendAsync(msg []byte, tag OperationTag, handler SendHandler) {
	t.txMu.Lock()
	defer t.txMu.Unlock()

	if tag != 0 {
		t.checkTagNotUsedLocked(tag)
	}

	if t.lastTxErr != nil {
		err := t.lastTxErr
		t.ctx.Post(func() { handler(err) })
		return
	}

	if t.oversizeLocked(msg) {
		err := yerr.New(yerr.PayloadTooLarge)
		t.ctx.Post(func() { handler(err) })
		return
	}

	if len(t.pendingSends) == 0 && t.writeMsgLocked(msg) {
		t.ctx.Post(func() { handler(nil) })
		return
	}

	snapshot := append([]byte(nil), msg...)
	t.pendingSends = append(t.pendingSends, pendingSend{tag: tag, bytes: snapshot, handler: handler})
}

func (t *Transport) checkTagNotUsedLocked(tag OperationTag) {
	for _, ps := range t.pendingSends {
		if ps.tag == tag {
			panic("msgtransport: duplicate operation tag in pending sends")
		}
	}
}

// CancelSend removes the tagged pending send, if present, and posts its
// handler with Canceled. Returns whether an entry was found.
func (t *Transport) CancelSend(tag OperationTag) bool {
	if tag == 0 {
		return false
	}

	t.txMu.Lock()
	for i, ps := range t.pendingSends {
		if ps.tag != tag {
			continue
		}
		t.pendingSends = append(t.pendingSends[:i], t.pendingSends[i+1:]...)
		t.txMu.Unlock()
		t.ctx.Post(func() { ps.handler(yerr.New(yerr.Canceled)) })
		return true
	}
	t.txMu.Unlock()
	return false
}

// sendSomeBytesToTransportLocked ensures at most one outstanding SendSome
// to the byte transport at a time, per the send_to_transport_running flag
// (spec §4.4). Requires t.txMu held; the completion callback re-acquires it.
func (t *Transport) sendSomeBytesToTransportLocked() {
	if t.txRing.Empty() || t.sendToTransportRunning {
		return
	}
	t.sendToTransportRunning = true

	buf := t.txRing.FirstReadArray()
	t.bt.SendSome(buf, func(err yerr.Error, n int) {
		if err != nil {
			t.handleSendError(err)
			return
		}

		t.txMu.Lock()
		t.txRing.CommitFirstReadArray(uint64(n))
		t.sendToTransportRunning = false

		if !t.txRing.Empty() {
			t.sendSomeBytesToTransportLocked()
		}
		t.retrySendingPendingSendsLocked()
		t.txMu.Unlock()
	})
}

// retrySendingPendingSendsLocked drains pendingSends in FIFO order,
// stopping at the first entry that still doesn't fit. Requires t.txMu held.
func (t *Transport) retrySendingPendingSendsLocked() {
	i := 0
	for ; i < len(t.pendingSends); i++ {
		ps := t.pendingSends[i]
		if !t.writeMsgLocked(ps.bytes) {
			break
		}
		handler := ps.handler
		t.ctx.Post(func() { handler(nil) })
	}
	t.pendingSends = t.pendingSends[i:]
}

func (t *Transport) handleSendError(err yerr.Error) {
	t.log.WithError(err).Error("sending message failed")
	t.bt.Close()

	t.txMu.Lock()
	if t.lastTxErr == nil {
		t.lastTxErr = err
	}
	pending := t.pendingSends
	t.pendingSends = nil
	t.txMu.Unlock()

	for _, ps := range pending {
		h := ps.handler
		t.ctx.Post(func() { h(err) })
	}
}

// RecvAsync registers a one-shot receiver. Exactly one receive may be
// pending at a time. If a size field has already been decoded and enough
// payload is buffered, delivery happens immediately (posted to the
// context). If buf is smaller than the message, the prefix is copied, the
// remainder discarded, and handler fires with BufferTooSmall and the full
// size.
func (t *Transport) RecvAsync(buf []byte, handler RecvHandler) {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()

	if t.lastRxErr != nil {
		err := t.lastRxErr
		t.ctx.Post(func() { handler(err, 0) })
		return
	}

	t.pendingRecvBuf = buf
	t.pendingRecvHandler = handler
	t.tryDeliveringPendingReceiveLocked()
}

// CancelRecv posts the pending receive handler with Canceled, if any.
// Returns whether a receive was pending.
func (t *Transport) CancelRecv() bool {
	t.rxMu.Lock()
	if t.pendingRecvHandler == nil {
		t.rxMu.Unlock()
		return false
	}
	handler := t.pendingRecvHandler
	t.pendingRecvHandler = nil
	t.pendingRecvBuf = nil
	t.rxMu.Unlock()

	t.ctx.Post(func() { handler(yerr.New(yerr.Canceled), 0) })
	return true
}

// receiveSomeBytesFromTransport drives continuous RX refill via the
// receive_from_transport_running flag (spec §4.4).
func (t *Transport) receiveSomeBytesFromTransport() {
	t.rxMu.Lock()
	if t.receiveFromTransportRunning {
		t.rxMu.Unlock()
		return
	}
	t.receiveFromTransportRunning = true
	buf := t.rxRing.FirstWriteArray()
	t.rxMu.Unlock()

	t.bt.RecvSome(buf, func(err yerr.Error, n int) {
		if err != nil {
			t.handleReceiveError(err)
			return
		}

		t.rxMu.Lock()
		t.rxRing.CommitFirstWriteArray(uint64(n))
		t.receiveFromTransportRunning = false
		t.tryDeliveringPendingReceiveLocked()
		full := t.rxRing.Full()
		t.rxMu.Unlock()

		if !full {
			t.receiveSomeBytesFromTransport()
		}
	})
}

// tryGetReceivedSizeFieldLocked decodes the next message's size field from
// the RX ring a byte at a time, caching the result until consumed by
// tryDeliveringPendingReceiveLocked. Requires t.rxMu held.
func (t *Transport) tryGetReceivedSizeFieldLocked() bool {
	if t.sizeKnown {
		return true
	}

	var failed yerr.Error
	t.rxRing.PopUntil(func(b byte) bool {
		value, done, overflow := t.sizeDec.PushByte(b)
		if overflow {
			failed = yerr.New(yerr.DeserializeMsgFailed)
			return true
		}
		if !done {
			return false
		}
		if value > t.rxRing.Capacity() {
			failed = yerr.New(yerr.DeserializeMsgFailed)
			return true
		}
		t.sizeValue = value
		t.sizeKnown = true
		return true
	})

	if failed != nil {
		t.failReceiveLocked(failed)
		return false
	}
	return t.sizeKnown
}

func (t *Transport) resetReceivedSizeFieldLocked() {
	t.sizeDec.Reset()
	t.sizeKnown = false
}

// tryDeliveringPendingReceiveLocked delivers the pending receiver if a size
// field is known and enough payload is buffered. Requires t.rxMu held.
func (t *Transport) tryDeliveringPendingReceiveLocked() {
	if t.pendingRecvHandler == nil {
		return
	}
	if !t.tryGetReceivedSizeFieldLocked() {
		return
	}
	size := t.sizeValue
	if t.rxRing.AvailableForRead() < size {
		return
	}

	handler := t.pendingRecvHandler
	buf := t.pendingRecvBuf
	t.pendingRecvHandler = nil
	t.pendingRecvBuf = nil
	t.resetReceivedSizeFieldLocked()

	n := size
	if uint64(len(buf)) < n {
		n = uint64(len(buf))
	}
	t.rxRing.Read(buf[:n])

	if n < size {
		t.rxRing.Discard(size - n)
		err := yerr.New(yerr.BufferTooSmall)
		t.ctx.Post(func() { handler(err, int(size)) })
	} else {
		t.ctx.Post(func() { handler(nil, int(size)) })
	}
}

// failReceiveLocked closes the byte transport, latches err as the sticky RX
// error, and, if a receive is pending, completes it with err. Requires
// t.rxMu held. Closing here (rather than leaving it to callers) guarantees
// the RX refill loop in receiveSomeBytesFromTransport observes a dead
// transport on its very next RecvSome instead of spinning against a socket
// nothing will ever stop reading from (spec §7: the first fatal error
// invokes close() internally exactly once; transport.Close is idempotent,
// so a caller that already closed bt pays nothing for calling this again).
func (t *Transport) failReceiveLocked(err yerr.Error) {
	t.bt.Close()
	if t.lastRxErr == nil {
		t.lastRxErr = err
	}
	if t.pendingRecvHandler != nil {
		handler := t.pendingRecvHandler
		t.pendingRecvHandler = nil
		t.pendingRecvBuf = nil
		t.ctx.Post(func() { handler(err, 0) })
	}
}

func (t *Transport) handleReceiveError(err yerr.Error) {
	t.log.WithError(err).Error("receiving message failed")

	t.rxMu.Lock()
	t.failReceiveLocked(err)
	t.rxMu.Unlock()
}

// Close forwards to the byte transport. Any in-flight or subsequently
// submitted send/receive fails with the sticky error, mirroring Close's
// effect on the underlying ByteTransport per spec §4.3/§4.4.
func (t *Transport) Close() {
	t.bt.Close()
	err := t.bt.LastError()

	t.txMu.Lock()
	if t.lastTxErr == nil {
		t.lastTxErr = err
	}
	t.txMu.Unlock()

	t.rxMu.Lock()
	t.failReceiveLocked(err)
	t.rxMu.Unlock()
}

// LastTxError returns the sticky TX error, or nil if sending hasn't failed.
func (t *Transport) LastTxError() yerr.Error {
	t.txMu.Lock()
	defer t.txMu.Unlock()
	return t.lastTxErr
}

// LastRxError returns the sticky RX error, or nil if receiving hasn't failed.
func (t *Transport) LastRxError() yerr.Error {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	return t.lastRxErr
}
