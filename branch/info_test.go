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

package branch_test

import (
	"time"

	"github.com/nabbar/yogi/branch"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/varint"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestLocal(name, path string) *branch.LocalInfo {
	return branch.NewLocalInfo(
		name, "a test branch", "testnet", path,
		"127.0.0.1", 12345,
		5*time.Second, time.Second, false,
		[]string{"all"}, "239.255.0.1", 13531,
		64*1024, 64*1024, 0,
	)
}

var _ = Describe("Adv message", func() {
	It("is exactly 25 bytes and round-trips uuid + port", func() {
		li := newTestLocal("alice", "/alice")
		Expect(li.AdvMessage()).To(HaveLen(branch.AdvertisingMessageSize))

		id, port, err := branch.ParseAdvMessage(li.AdvMessage())
		Expect(err).To(BeNil())
		Expect(id).To(Equal(li.UUID))
		Expect(port).To(Equal(li.TCPPort))
	})

	It("rejects a bad magic prefix", func() {
		li := newTestLocal("alice", "/alice")
		bad := append([]byte(nil), li.AdvMessage()...)
		bad[0] = 'X'

		_, _, err := branch.ParseAdvMessage(bad)
		Expect(err).NotTo(BeNil())
		Expect(err.Code()).To(Equal(yerr.InvalidMagicPrefix))
	})

	It("rejects an incompatible version", func() {
		li := newTestLocal("alice", "/alice")
		bad := append([]byte(nil), li.AdvMessage()...)
		bad[5] = branch.VersionMajor + 1

		_, _, err := branch.ParseAdvMessage(bad)
		Expect(err).NotTo(BeNil())
		Expect(err.Code()).To(Equal(yerr.IncompatibleVersion))
	})
})

var _ = Describe("Info message", func() {
	It("round-trips every field through the body codec", func() {
		li := newTestLocal("bob", "/bob/path")

		msg := li.InfoMessage()
		Expect(msg[:branch.AdvertisingMessageSize]).To(Equal(li.AdvMessage()))

		body := msg[branch.AdvertisingMessageSize:]
		// Skip over the body-length varint the way a real reader would,
		// since we already have the raw bytes in hand here.
		_, n, ok := varint.Decode(body)
		Expect(ok).To(BeTrue())

		info, err := branch.ParseInfoBody(body[n:], li.UUID, "127.0.0.1", li.TCPPort)
		Expect(err).To(BeNil())
		Expect(info.Name).To(Equal("bob"))
		Expect(info.Path).To(Equal("/bob/path"))
		Expect(info.NetworkName).To(Equal("testnet"))
		Expect(info.Timeout).To(Equal(5 * time.Second))
		Expect(info.GhostMode).To(BeFalse())
	})

	It("represents an infinite timeout/interval as a negative duration", func() {
		li := branch.NewLocalInfo(
			"carol", "", "testnet", "/carol",
			"127.0.0.1", 1,
			-1, -1, true,
			nil, "239.255.0.1", 13531,
			0, 0, 0,
		)

		body := li.InfoMessage()[branch.AdvertisingMessageSize:]
		_, n, ok := varint.Decode(body)
		Expect(ok).To(BeTrue())

		info, err := branch.ParseInfoBody(body[n:], li.UUID, "127.0.0.1", 1)
		Expect(err).To(BeNil())
		Expect(info.Timeout).To(Equal(time.Duration(-1)))
		Expect(info.AdvInterval).To(Equal(time.Duration(-1)))
		Expect(info.GhostMode).To(BeTrue())
	})
})

var _ = Describe("Registry", func() {
	It("flags a duplicate name from a different uuid", func() {
		reg := branch.NewRegistry()
		reg.Add(branch.Info{UUID: uuid.New(), Name: "dup", Path: "/a"})

		err := reg.CheckDuplicate(branch.Info{UUID: uuid.New(), Name: "dup", Path: "/b"})
		Expect(err).NotTo(BeNil())
		Expect(err.Code()).To(Equal(yerr.DuplicateBranchName))
	})

	It("flags a duplicate path from a different uuid", func() {
		reg := branch.NewRegistry()
		reg.Add(branch.Info{UUID: uuid.New(), Name: "a", Path: "/shared"})

		err := reg.CheckDuplicate(branch.Info{UUID: uuid.New(), Name: "b", Path: "/shared"})
		Expect(err).NotTo(BeNil())
		Expect(err.Code()).To(Equal(yerr.DuplicateBranchPath))
	})

	It("doesn't flag a branch updating its own entry", func() {
		id := uuid.New()
		reg := branch.NewRegistry()
		reg.Add(branch.Info{UUID: id, Name: "self", Path: "/self"})

		err := reg.CheckDuplicate(branch.Info{UUID: id, Name: "self", Path: "/self"})
		Expect(err).To(BeNil())
	})
})
