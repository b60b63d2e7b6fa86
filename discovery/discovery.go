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

package discovery

import (
	"net"
	"sync"
	"time"

	"github.com/nabbar/yogi/branch"
	"github.com/nabbar/yogi/engine"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/logging"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Advertiser periodically multicasts a local branch's 25-byte Adv message
// on the configured (address, port) across every selected interface (spec
// §4.6). One Advertiser per local branch.
type Advertiser struct {
	ctx   *engine.Context
	timer *engine.Timer
	log   logrus.FieldLogger

	conn     *net.UDPConn
	groupV4  net.IP
	groupV6  net.IP
	port     int
	p4       *ipv4.PacketConn
	p6       *ipv6.PacketConn
	ifaces4  []net.Interface
	ifaces6  []net.Interface
	msg      []byte
	interval time.Duration

	mu      sync.Mutex
	stopped bool
}

// NewAdvertiser creates an Advertiser bound to ctx, multicasting msg (an
// Adv message from branch.LocalInfo.AdvMessage) to groupAddr:port on the
// given ifaces every interval.
func NewAdvertiser(ctx *engine.Context, ifaces []net.Interface, groupAddr string, port int,
	msg []byte, interval time.Duration) (*Advertiser, error) {

	group := net.ParseIP(groupAddr)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, err
	}

	a := &Advertiser{
		ctx:      ctx,
		log:      logging.For("discovery.advertiser"),
		conn:     conn,
		port:     port,
		msg:      msg,
		interval: interval,
	}

	if group.To4() != nil {
		a.groupV4 = group
		a.p4 = ipv4.NewPacketConn(conn)
		a.ifaces4 = ifaces
		for _, ifc := range ifaces {
			_ = a.p4.JoinGroup(&ifc, &net.UDPAddr{IP: group})
		}
	} else {
		a.groupV6 = group
		a.p6 = ipv6.NewPacketConn(conn)
		a.ifaces6 = ifaces
		for _, ifc := range ifaces {
			_ = a.p6.JoinGroup(&ifc, &net.UDPAddr{IP: group})
		}
	}

	a.timer = engine.NewTimer(ctx)
	return a, nil
}

// Start begins the periodic advertising cycle. Safe to call once.
func (a *Advertiser) Start() {
	a.scheduleNext()
}

func (a *Advertiser) scheduleNext() {
	a.timer.Start(a.interval, func(err yerr.Error) {
		if err != nil {
			return // canceled (Close) or the context is gone
		}
		a.sendOnce()
		a.scheduleNext()
	})
}

func (a *Advertiser) sendOnce() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	dst := &net.UDPAddr{Port: a.port}
	if a.groupV4 != nil {
		dst.IP = a.groupV4
	} else {
		dst.IP = a.groupV6
	}

	var pc interface{ SetMulticastInterface(*net.Interface) error } = a.p4
	ifaces := a.ifaces4
	if a.p6 != nil {
		pc, ifaces = a.p6, a.ifaces6
	}
	for i := range ifaces {
		err := pc.SetMulticastInterface(&ifaces[i])
		if err == nil {
			_, err = a.conn.WriteTo(a.msg, dst)
		}
		if err != nil {
			a.log.WithError(err).Warn("advertising send failed")
		}
	}
}

// Close stops advertising and releases the socket.
func (a *Advertiser) Close() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	a.timer.Close()
	_ = a.conn.Close()
}

// Discovered reports a peer's Adv message: its uuid, TCP port, and source
// IP address.
type Discovered struct {
	UUID    uuid.UUID
	TCPPort uint16
	Addr    net.IP
}

// DiscoveredHandler is posted to the owning Context for each valid,
// non-self Adv datagram received.
type DiscoveredHandler func(d Discovered)

// Receiver listens on the same multicast group the Advertiser uses and
// reports every valid Adv datagram that isn't this branch's own uuid
// (spec §4.6 receiving side).
type Receiver struct {
	ctx     *engine.Context
	conn    *net.UDPConn
	self    uuid.UUID
	handler DiscoveredHandler
	log     logrus.FieldLogger

	mu     sync.Mutex
	closed bool
}

// NewReceiver joins groupAddr:port on ifaces and invokes handler (posted to
// ctx) for each valid Adv datagram whose uuid differs from self.
func NewReceiver(ctx *engine.Context, ifaces []net.Interface, groupAddr string, port int,
	self uuid.UUID, handler DiscoveredHandler) (*Receiver, error) {

	group := net.ParseIP(groupAddr)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}

	if group.To4() != nil {
		p4 := ipv4.NewPacketConn(conn)
		for _, ifc := range ifaces {
			_ = p4.JoinGroup(&ifc, &net.UDPAddr{IP: group})
		}
	} else {
		p6 := ipv6.NewPacketConn(conn)
		for _, ifc := range ifaces {
			_ = p6.JoinGroup(&ifc, &net.UDPAddr{IP: group})
		}
	}

	r := &Receiver{
		ctx:     ctx,
		conn:    conn,
		self:    self,
		handler: handler,
		log:     logging.For("discovery.receiver"),
	}
	return r, nil
}

// Start begins the continuous receive loop on its own goroutine, posting
// every valid discovery to the owning Context.
func (r *Receiver) Start() {
	go r.loop()
}

func (r *Receiver) loop() {
	buf := make([]byte, 1500)
	for {
		n, src, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		if n != branch.AdvertisingMessageSize {
			continue // spec §4.6: datagrams of any other length are silently dropped
		}

		id, port, perr := branch.ParseAdvMessage(buf[:n])
		if perr != nil {
			r.log.WithError(perr).Debug("dropping malformed advertising datagram")
			continue
		}
		if id == r.self {
			continue // loopback: our own advertisement
		}

		d := Discovered{UUID: id, TCPPort: port, Addr: append(net.IP(nil), src.IP...)}
		r.ctx.Post(func() { r.handler(d) })
	}
}

// Close stops the receive loop and releases the socket.
func (r *Receiver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	_ = r.conn.Close()
}
