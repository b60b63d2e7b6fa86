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

package connmgr_test

import (
	"time"

	"github.com/nabbar/yogi/config"
	"github.com/nabbar/yogi/connmgr"
	"github.com/nabbar/yogi/engine"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/events"

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

// drainEvents keeps one AwaitEvent pending on q for its whole lifetime,
// forwarding every delivered event to the returned channel, until q is
// closed (at which point the canceled completion is dropped).
func drainEvents(q *events.Queue) <-chan events.Event {
	ch := make(chan events.Event, 64)
	var loop func()
	loop = func() {
		q.AwaitEvent(make([]byte, 512), func(err yerr.Error, ev events.Event, n int) {
			if err != nil {
				return
			}
			ch <- ev
			loop()
		})
	}
	loop()
	return ch
}

func baseConfig(name, path, networkName, advAddr string, advPort uint16) *config.Config {
	c := &config.Config{
		Name:             name,
		NetworkName:      networkName,
		Path:             path,
		AdvertisingIface: []string{"localhost"},
		AdvertisingAddr:  advAddr,
		AdvertisingPort:  advPort,
		AdvertisingIntvl: 20 * time.Millisecond,
		Timeout:          2 * time.Second,
		TCPHost:          "127.0.0.1",
	}
	Expect(config.Validate(c)).To(Succeed())
	return c
}

func kindsOf(evs []events.Event) []events.Kind {
	out := make([]events.Kind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

var _ = Describe("Manager", func() {
	It("observes branch_discovered, branch_queried, then connect_finished(ok) (spec testable property 8)", func() {
		ctxA, ctxB := engine.New(), engine.New()
		stopA, stopB := startPump(ctxA), startPump(ctxB)
		defer stopA()
		defer stopB()

		cfgA := baseConfig("branch-a", "/a", "testnet", "239.255.12.1", 41001)
		cfgB := baseConfig("branch-b", "/b", "testnet", "239.255.12.1", 41001)

		mgrA, err := connmgr.New(ctxA, cfgA, "secret")
		Expect(err).To(BeNil())
		defer mgrA.Close()
		mgrB, err := connmgr.New(ctxB, cfgB, "secret")
		Expect(err).To(BeNil())
		defer mgrB.Close()

		evA := drainEvents(mgrA.Events())

		Expect(mgrA.Start()).To(Succeed())
		Expect(mgrB.Start()).To(Succeed())

		var collected []events.Event
		Eventually(func() []events.Kind {
			for {
				select {
				case e := <-evA:
					collected = append(collected, e)
				default:
					return kindsOf(collected)
				}
			}
		}, 3*time.Second, 10*time.Millisecond).Should(ContainElement(events.ConnectFinished))

		Expect(collected[0].Kind).To(Equal(events.BranchDiscovered))
		foundQueried, foundFinished := false, false
		var finishedEvent events.Event
		for _, e := range collected {
			if e.Kind == events.BranchQueried {
				foundQueried = true
			}
			if e.Kind == events.ConnectFinished {
				foundFinished = true
				finishedEvent = e
			}
		}
		Expect(foundQueried).To(BeTrue())
		Expect(foundFinished).To(BeTrue())
		Expect(finishedEvent.Result).To(BeNil())
	})

	It("reports connect_finished(duplicate_branch_name) and no session for same-name branches (spec testable property 9)", func() {
		ctxA, ctxB := engine.New(), engine.New()
		stopA, stopB := startPump(ctxA), startPump(ctxB)
		defer stopA()
		defer stopB()

		cfgA := baseConfig("same-name", "/a", "testnet", "239.255.12.2", 41002)
		cfgB := baseConfig("same-name", "/b", "testnet", "239.255.12.2", 41002)

		mgrA, err := connmgr.New(ctxA, cfgA, "secret")
		Expect(err).To(BeNil())
		defer mgrA.Close()
		mgrB, err := connmgr.New(ctxB, cfgB, "secret")
		Expect(err).To(BeNil())
		defer mgrB.Close()

		evA := drainEvents(mgrA.Events())

		Expect(mgrA.Start()).To(Succeed())
		Expect(mgrB.Start()).To(Succeed())

		var finished events.Event
		Eventually(func() bool {
			select {
			case e := <-evA:
				if e.Kind == events.ConnectFinished {
					finished = e
					return true
				}
			default:
			}
			return false
		}, 3*time.Second, 10*time.Millisecond).Should(BeTrue())

		Expect(finished.Result).NotTo(BeNil())
		Expect(finished.Result.IsCode(yerr.DuplicateBranchName)).To(BeTrue())
	})
})
