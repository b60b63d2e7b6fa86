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

package handshake_test

import (
	"net"
	"time"

	"github.com/nabbar/yogi/branch"
	"github.com/nabbar/yogi/engine"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/handshake"
	"github.com/nabbar/yogi/transport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func startPump(ctx *engine.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				ctx.Poll()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return func() { close(done) }
}

func newLocal(name, networkName, path string) *branch.LocalInfo {
	return branch.NewLocalInfo(
		name, "", networkName, path,
		"127.0.0.1", 0,
		time.Second, time.Second, false,
		nil, "239.255.5.5", 0,
		0, 0, 0,
	)
}

type harness struct {
	ctxA, ctxB   *engine.Context
	btA, btB     *transport.TCP
	stopA, stopB func()
	registryA    *branch.Registry
	registryB    *branch.Registry
}

func newHarness() *harness {
	ctxA, ctxB := engine.New(), engine.New()
	// A real loopback TCP pair, not net.Pipe: both sides write their Info
	// before reading the peer's, which needs the kernel's socket buffering
	// (net.Pipe has none, so both writes would block each other).
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).To(BeNil())
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	a, err := net.Dial("tcp", ln.Addr().String())
	Expect(err).To(BeNil())
	b := <-accepted
	btA := transport.NewTCP(ctxA, a, time.Second)
	btB := transport.NewTCP(ctxB, b, time.Second)
	return &harness{
		ctxA: ctxA, ctxB: ctxB,
		btA: btA, btB: btB,
		stopA: startPump(ctxA), stopB: startPump(ctxB),
		registryA: branch.NewRegistry(), registryB: branch.NewRegistry(),
	}
}

func (h *harness) close() {
	h.btA.Close()
	h.btB.Close()
	h.stopA()
	h.stopB()
}

var _ = Describe("Perform", func() {
	It("completes successfully when both sides agree on password and network", func() {
		h := newHarness()
		defer h.close()

		localA := newLocal("branch-a", "testnet", "/a")
		localB := newLocal("branch-b", "testnet", "/b")

		resA := make(chan handshake.Result, 1)
		resB := make(chan handshake.Result, 1)

		handshake.Perform(h.btA, localA, "secret", "", h.registryA, func(r handshake.Result) { resA <- r })
		handshake.Perform(h.btB, localB, "secret", "", h.registryB, func(r handshake.Result) { resB <- r })

		var a, b handshake.Result
		Eventually(resA, time.Second).Should(Receive(&a))
		Eventually(resB, time.Second).Should(Receive(&b))

		Expect(a.Err).To(BeNil())
		Expect(b.Err).To(BeNil())
		Expect(a.Peer.Name).To(Equal("branch-b"))
		Expect(b.Peer.Name).To(Equal("branch-a"))
		Expect(a.Peer.UUID).To(Equal(localB.UUID))
		Expect(b.Peer.UUID).To(Equal(localA.UUID))
	})

	It("fails both sides with password_mismatch when passwords differ", func() {
		h := newHarness()
		defer h.close()

		localA := newLocal("branch-a", "testnet", "/a")
		localB := newLocal("branch-b", "testnet", "/b")

		resA := make(chan handshake.Result, 1)
		resB := make(chan handshake.Result, 1)

		handshake.Perform(h.btA, localA, "secret", "", h.registryA, func(r handshake.Result) { resA <- r })
		handshake.Perform(h.btB, localB, "different", "", h.registryB, func(r handshake.Result) { resB <- r })

		var a, b handshake.Result
		Eventually(resA, time.Second).Should(Receive(&a))
		Eventually(resB, time.Second).Should(Receive(&b))

		Expect(a.Err).NotTo(BeNil())
		Expect(a.Err.IsCode(yerr.PasswordMismatch)).To(BeTrue())
		Expect(b.Err).NotTo(BeNil())
		Expect(b.Err.IsCode(yerr.PasswordMismatch)).To(BeTrue())
	})

	It("fails with net_name_mismatch when network names differ", func() {
		h := newHarness()
		defer h.close()

		localA := newLocal("branch-a", "testnet-1", "/a")
		localB := newLocal("branch-b", "testnet-2", "/b")

		resA := make(chan handshake.Result, 1)
		resB := make(chan handshake.Result, 1)

		handshake.Perform(h.btA, localA, "secret", "", h.registryA, func(r handshake.Result) { resA <- r })
		handshake.Perform(h.btB, localB, "secret", "", h.registryB, func(r handshake.Result) { resB <- r })

		var a, b handshake.Result
		Eventually(resA, time.Second).Should(Receive(&a))
		Eventually(resB, time.Second).Should(Receive(&b))

		Expect(a.Err).NotTo(BeNil())
		Expect(a.Err.IsCode(yerr.NetNameMismatch)).To(BeTrue())
		Expect(b.Err).NotTo(BeNil())
		Expect(b.Err.IsCode(yerr.NetNameMismatch)).To(BeTrue())
	})

	It("fails with loopback_connection when the peer's Info carries our own uuid (spec testable property 10)", func() {
		h := newHarness()
		defer h.close()

		localA := newLocal("branch-a", "testnet", "/a")
		localB := newLocal("branch-b", "testnet", "/b")

		resA := make(chan handshake.Result, 1)
		handshake.Perform(h.btA, localA, "secret", "", h.registryA, func(r handshake.Result) { resA <- r })

		// Drain A's Info message, then reply with B's own Info message
		// doctored to carry A's uuid instead of B's -- a fake peer
		// re-advertising the local branch's identity never needs to run
		// the rest of the protocol, since the loopback check happens as
		// soon as the Info body is parsed.
		drain := make([]byte, len(localA.InfoMessage()))
		drained := make(chan yerr.Error, 1)
		h.btB.RecvAll(drain, func(err yerr.Error) { drained <- err })
		Eventually(drained, time.Second).Should(Receive(BeNil()))

		forged := append([]byte(nil), localB.InfoMessage()...)
		copy(forged[7:23], localA.UUID[:])
		sent := make(chan yerr.Error, 1)
		h.btB.SendAll(forged, func(err yerr.Error) { sent <- err })
		Eventually(sent, time.Second).Should(Receive(BeNil()))

		var a handshake.Result
		Eventually(resA, time.Second).Should(Receive(&a))
		Expect(a.Err).NotTo(BeNil())
		Expect(a.Err.IsCode(yerr.LoopbackConnection)).To(BeTrue())
		Expect(a.Peer.UUID).To(Equal(localA.UUID))
	})

	It("fails with duplicate_branch_name when the registry already holds that name", func() {
		h := newHarness()
		defer h.close()

		localA := newLocal("branch-a", "testnet", "/a")
		localB := newLocal("dup-name", "testnet", "/b")

		// registryA already knows of a different branch named "dup-name"
		// under a different uuid, so once A learns B's Info it must
		// reject the session as a duplicate.
		h.registryA.Add(branch.Info{UUID: localA.UUID, Name: "dup-name", Path: "/other"})

		resA := make(chan handshake.Result, 1)
		resB := make(chan handshake.Result, 1)

		handshake.Perform(h.btA, localA, "secret", "", h.registryA, func(r handshake.Result) { resA <- r })
		handshake.Perform(h.btB, localB, "secret", "", h.registryB, func(r handshake.Result) { resB <- r })

		var a, b handshake.Result
		Eventually(resA, time.Second).Should(Receive(&a))
		Eventually(resB, time.Second).Should(Receive(&b))

		Expect(a.Err).NotTo(BeNil())
		Expect(a.Err.IsCode(yerr.DuplicateBranchName)).To(BeTrue())
		// B's own view of the handshake succeeds; the duplicate is A's
		// local policy decision, not a wire-level failure.
		Expect(b.Err).To(BeNil())
	})
})
