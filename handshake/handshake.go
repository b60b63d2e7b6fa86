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

// Package handshake drives the nine-step session handshake of spec.md §4.7
// over an already-connected transport.ByteTransport: Info exchange,
// SHA-256 challenge/response auth, and network-name/duplicate checks. Every
// step is asynchronous; Perform never blocks its caller.
package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/nabbar/yogi/branch"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/transport"
	"github.com/nabbar/yogi/varint"

	"github.com/google/uuid"
)

const challengeSize = 8
const solutionSize = sha256.Size
const ackByte = 0x00

// Result is delivered to a Perform caller's ResultHandler once the
// handshake finishes, successfully or not (spec §4.7 final paragraph: any
// IO failure surfaces via the connect-finished event with its error code).
type Result struct {
	Peer branch.Info
	Err  yerr.Error
}

// ResultHandler receives the outcome of a Perform call.
type ResultHandler func(Result)

// Perform runs the handshake over bt for the local branch local,
// authenticating with password and checking registry for duplicate
// name/path once the peer's Info is known. handler is invoked exactly
// once, never before Perform returns.
func Perform(bt transport.ByteTransport, local *branch.LocalInfo, password string,
	peerHost string, registry *branch.Registry, handler ResultHandler) {

	var pwHash [sha256.Size]byte
	pwHash = sha256.Sum256([]byte(password))

	s := &session{
		bt:       bt,
		local:    local,
		pwHash:   pwHash,
		peerHost: peerHost,
		registry: registry,
		handler:  handler,
	}
	s.run()
}

// session carries the state threaded through the handshake's async
// continuations. One session per handshake attempt; never reused.
type session struct {
	bt       transport.ByteTransport
	local    *branch.LocalInfo
	pwHash   [sha256.Size]byte
	peerHost string
	registry *branch.Registry
	handler  ResultHandler

	peerID      uuid.UUID
	peerPort    uint16
	peer        branch.Info
	myChallenge [challengeSize]byte
}

// fail completes the handshake with err, attributing it to whatever peer
// uuid is known so far: the full parsed Info once step 2 finishes, just
// the uuid from the Adv prefix if only that much was read, or the zero
// uuid if the failure happened before the peer was identified at all.
func (s *session) fail(err yerr.Error) {
	peer := s.peer
	if peer.UUID == (uuid.UUID{}) {
		peer.UUID = s.peerID
	}
	s.handler(Result{Peer: peer, Err: err})
}

// run starts step 1: write our own Info message.
func (s *session) run() {
	s.bt.SendAll(s.local.InfoMessage(), func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		s.readPeerAdv()
	})
}

// readPeerAdv is step 2's first half: the peer's 25-byte Adv prefix.
func (s *session) readPeerAdv() {
	buf := make([]byte, branch.AdvertisingMessageSize)
	s.bt.RecvAll(buf, func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		id, port, perr := branch.ParseAdvMessage(buf)
		if perr != nil {
			s.fail(perr)
			return
		}
		s.peerID = id
		s.peerPort = port
		s.readBodyLen(&varint.Decoder{})
	})
}

// readBodyLen is step 2's second half: the varint-encoded body length
// (spec §6 BodyLen), read one byte at a time since its size isn't known
// in advance.
func (s *session) readBodyLen(dec *varint.Decoder) {
	b := make([]byte, 1)
	s.bt.RecvAll(b, func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		value, done, overflow := dec.PushByte(b[0])
		if overflow {
			s.fail(yerr.New(yerr.DeserializeMsgFailed))
			return
		}
		if !done {
			s.readBodyLen(dec)
			return
		}
		s.readBody(value)
	})
}

func (s *session) readBody(bodyLen uint64) {
	body := make([]byte, bodyLen)
	s.bt.RecvAll(body, func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		peer, perr := branch.ParseInfoBody(body, s.peerID, s.peerHost, s.peerPort)
		if perr != nil {
			s.fail(perr)
			return
		}
		s.peer = peer
		if s.peer.UUID == s.local.UUID {
			s.fail(yerr.New(yerr.LoopbackConnection))
			return
		}
		s.exchangeAck1()
	})
}

// exchangeAck1 is step 3: the first 1-byte acknowledge exchange.
func (s *session) exchangeAck1() {
	s.exchangeAck(s.sendChallenge)
}

// exchangeAck writes and reads a single acknowledge byte, then continues.
// Both sides run the same send-then-receive order, so a tiny one-byte
// acknowledge never deadlocks: the peer's write completes into its own
// socket buffer before either side blocks on the matching read.
func (s *session) exchangeAck(next func()) {
	out := []byte{ackByte}
	s.bt.SendAll(out, func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		in := make([]byte, 1)
		s.bt.RecvAll(in, func(err yerr.Error) {
			if err != nil {
				s.fail(err)
				return
			}
			next()
		})
	})
}

// sendChallenge is step 4: send our own random 8-byte challenge, then read
// the peer's.
func (s *session) sendChallenge() {
	if _, err := rand.Read(s.myChallenge[:]); err != nil {
		s.fail(yerr.Wrap(yerr.Internal, err))
		return
	}
	s.bt.SendAll(s.myChallenge[:], func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		peerChallenge := make([]byte, challengeSize)
		s.bt.RecvAll(peerChallenge, func(err yerr.Error) {
			if err != nil {
				s.fail(err)
				return
			}
			s.sendSolution(peerChallenge)
		})
	})
}

// sendSolution is step 5: solution = SHA-256(peer_challenge ||
// SHA-256(password)).
func (s *session) sendSolution(peerChallenge []byte) {
	h := sha256.New()
	h.Write(peerChallenge)
	h.Write(s.pwHash[:])
	solution := h.Sum(nil)

	s.bt.SendAll(solution, func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		s.verifySolution()
	})
}

// verifySolution is step 6: the peer's solution must equal
// SHA-256(my_challenge || SHA-256(password)).
func (s *session) verifySolution() {
	buf := make([]byte, solutionSize)
	s.bt.RecvAll(buf, func(err yerr.Error) {
		if err != nil {
			s.fail(err)
			return
		}
		h := sha256.New()
		h.Write(s.myChallenge[:])
		h.Write(s.pwHash[:])
		expected := h.Sum(nil)

		if subtle.ConstantTimeCompare(buf, expected) != 1 {
			s.fail(yerr.New(yerr.PasswordMismatch))
			return
		}
		s.exchangeAck2()
	})
}

// exchangeAck2 is step 7: the final 1-byte acknowledge.
func (s *session) exchangeAck2() {
	s.exchangeAck(s.checkNetworkAndDuplicates)
}

// checkNetworkAndDuplicates is steps 8-9: network name equality, then
// duplicate name/path detection.
func (s *session) checkNetworkAndDuplicates() {
	if s.peer.NetworkName != s.local.NetworkName {
		s.fail(yerr.New(yerr.NetNameMismatch))
		return
	}
	if err := s.registry.CheckDuplicate(s.peer); err != nil {
		s.fail(err)
		return
	}
	s.handler(Result{Peer: s.peer})
}
