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

// Package connmgr is the Connection Manager orchestrating spec.md §4.6-4.8:
// it owns a local branch's UDP advertising/discovery, dials or accepts TCP
// sessions with newly discovered peers, drives the handshake, and publishes
// branch_discovered/branch_queried/connect_finished events. It does not
// publish connection_lost: the later failure of an established session
// produces no event.
package connmgr

import (
	"fmt"
	"net"
	"sync"

	"github.com/nabbar/yogi/branch"
	"github.com/nabbar/yogi/config"
	"github.com/nabbar/yogi/discovery"
	"github.com/nabbar/yogi/engine"
	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/events"
	"github.com/nabbar/yogi/handshake"
	"github.com/nabbar/yogi/logging"
	"github.com/nabbar/yogi/msgtransport"
	"github.com/nabbar/yogi/transport"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// connState tracks what a Manager has already done for a given peer uuid,
// so a UDP re-advertisement doesn't trigger a second concurrent connect
// attempt against an already-connecting or already-connected peer.
type connState int

const (
	stateDiscovered connState = iota
	stateConnecting
	stateConnected
)

type peer struct {
	state   connState
	addr    net.IP
	tcpPort uint16
}

// Manager is the public entry point library consumers embed: one per local
// branch. Create with New, then Start.
type Manager struct {
	ctx      *engine.Context
	cfg      *config.Config
	password string
	local    *branch.LocalInfo
	registry *branch.Registry
	events   *events.Queue
	log      logrus.FieldLogger

	listener   *transport.Listener
	advertiser *discovery.Advertiser
	receiver   *discovery.Receiver

	mu       sync.Mutex
	peers    map[uuid.UUID]*peer
	sessions map[uuid.UUID]*msgtransport.Transport
	closed   bool
}

// New constructs a Manager bound to ctx for the given validated config and
// network password. It opens its TCP listener right away; inbound
// connections are only accepted once Start is called.
func New(ctx *engine.Context, cfg *config.Config, password string) (*Manager, error) {
	ln, yerrv := transport.Listen(fmt.Sprintf("%s:%d", cfg.TCPHost, cfg.TCPPort), false)
	if yerrv != nil {
		return nil, yerrv
	}

	tcpPort := uint16(ln.Addr().(*net.TCPAddr).Port)
	local := branch.NewLocalInfo(
		cfg.Name, cfg.Description, cfg.NetworkName, cfg.Path,
		cfg.TCPHost, tcpPort,
		cfg.Timeout, cfg.AdvertisingIntvl, cfg.GhostMode,
		cfg.AdvertisingIface, cfg.AdvertisingAddr, cfg.AdvertisingPort,
		cfg.TxQueueSize, cfg.RxQueueSize, 0,
	)

	m := &Manager{
		ctx:      ctx,
		cfg:      cfg,
		password: password,
		local:    local,
		registry: branch.NewRegistry(),
		events:   events.NewQueue(),
		log:      logging.For("connmgr"),
		listener: ln,
		peers:    make(map[uuid.UUID]*peer),
		sessions: make(map[uuid.UUID]*msgtransport.Transport),
	}
	m.registry.Add(local.Info)
	return m, nil
}

// UUID returns this Manager's local branch uuid.
func (m *Manager) UUID() uuid.UUID {
	return m.local.UUID
}

// TCPPort returns the locally bound TCP listening port.
func (m *Manager) TCPPort() uint16 {
	return uint16(m.listener.Addr().(*net.TCPAddr).Port)
}

// Events returns the branch event queue (spec §4.8: AwaitEvent/
// CancelAwaitEvent).
func (m *Manager) Events() *events.Queue {
	return m.events
}

// Start begins accepting inbound sessions and, if cfg.Discovering() reports
// true, starts the advertiser (which never sends with an Infinite interval)
// and the receiver that discovers peers.
func (m *Manager) Start() error {
	m.acceptNext()

	if m.cfg.Discovering() {
		ifaces, err := discovery.SelectInterfaces(m.cfg.AdvertisingIface)
		if err != nil {
			return err
		}

		adv, err := discovery.NewAdvertiser(m.ctx, ifaces, m.cfg.AdvertisingAddr,
			int(m.cfg.AdvertisingPort), m.local.AdvMessage(), m.cfg.AdvertisingIntvl)
		if err != nil {
			return err
		}
		m.advertiser = adv
		adv.Start()

		recv, err := discovery.NewReceiver(m.ctx, ifaces, m.cfg.AdvertisingAddr,
			int(m.cfg.AdvertisingPort), m.local.UUID, m.onDiscovered)
		if err != nil {
			adv.Close()
			return err
		}
		m.receiver = recv
		recv.Start()
	}
	return nil
}

// Close stops advertising/discovery/accepting, closes every established
// session, and completes any pending AwaitEvent with Canceled.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*msgtransport.Transport, 0, len(m.sessions))
	for _, t := range m.sessions {
		sessions = append(sessions, t)
	}
	m.mu.Unlock()

	m.listener.Close()
	if m.advertiser != nil {
		m.advertiser.Close()
	}
	if m.receiver != nil {
		m.receiver.Close()
	}
	for _, t := range sessions {
		t.Close()
	}
	m.events.Close()
}

// acceptNext keeps one AcceptAsync in flight for the lifetime of the
// Manager, per spec §4.6's "TCP accept" side.
func (m *Manager) acceptNext() {
	m.listener.AcceptAsync(-1, func(conn net.Conn, err yerr.Error) {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			m.log.WithError(err).Debug("accept failed")
			m.acceptNext()
			return
		}
		m.ctx.Post(func() {
			m.handshakeOver(transport.NewTCP(m.ctx, conn, m.cfg.Timeout), "")
		})
		m.acceptNext()
	})
}

// onDiscovered is the connection manager's "query phase" transition (spec
// §4.6 step 3): the first time a uuid is seen, it dials the peer's
// advertised TCP endpoint and posts branch_discovered.
func (m *Manager) onDiscovered(d discovery.Discovered) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, known := m.peers[d.UUID]; known {
		m.mu.Unlock()
		return // already discovered; only the last-seen timestamp would change
	}
	m.peers[d.UUID] = &peer{state: stateDiscovered, addr: d.Addr, tcpPort: d.TCPPort}
	m.mu.Unlock()

	m.events.Push(events.Event{UUID: d.UUID, Kind: events.BranchDiscovered})
	m.connect(d.UUID, d.Addr, d.TCPPort)
}

// connect dials addr:tcpPort on its own goroutine -- DialTimeout blocks,
// and nothing may block the Context's poll loop (spec §5 "no user code
// blocks in the core") -- then posts the outcome back onto ctx.
func (m *Manager) connect(id uuid.UUID, addr net.IP, tcpPort uint16) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if !ok || p.state != stateDiscovered {
		m.mu.Unlock()
		return
	}
	p.state = stateConnecting
	m.mu.Unlock()

	addrStr := net.JoinHostPort(addr.String(), fmt.Sprintf("%d", tcpPort))
	go func() {
		conn, err := transport.DialTimeout(addrStr, m.cfg.Timeout)
		if err != nil {
			m.ctx.Post(func() {
				m.finishConnect(id, events.Event{UUID: id, Kind: events.ConnectFinished, Result: err})
			})
			return
		}

		m.ctx.Post(func() {
			m.events.Push(events.Event{UUID: id, Kind: events.BranchQueried})
			m.handshakeOver(transport.NewTCP(m.ctx, conn, m.cfg.Timeout), addr.String())
		})
	}()
}

// handshakeOver runs the handshake protocol over bt (either an accepted or
// a dialed connection) and installs the resulting session.
func (m *Manager) handshakeOver(bt transport.ByteTransport, peerHost string) {
	handshake.Perform(bt, m.local, m.password, peerHost, m.registry, func(r handshake.Result) {
		if r.Err != nil {
			id := r.Peer.UUID
			if id == (uuid.UUID{}) {
				// failed before the peer's uuid was even known (e.g. a
				// transport error on the very first Info write); nothing
				// to report against a specific branch.
				bt.Close()
				return
			}
			m.finishConnect(id, events.Event{UUID: id, Kind: events.ConnectFinished, Result: r.Err})
			bt.Close()
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			bt.Close()
			return
		}
		m.registry.Add(r.Peer)
		t := msgtransport.New(m.ctx, bt, uint64(m.cfg.TxQueueSize), uint64(m.cfg.RxQueueSize))
		m.sessions[r.Peer.UUID] = t
		if p, ok := m.peers[r.Peer.UUID]; ok {
			p.state = stateConnected
		} else {
			m.peers[r.Peer.UUID] = &peer{state: stateConnected}
		}
		m.mu.Unlock()

		t.Start()
		m.events.Push(events.Event{UUID: r.Peer.UUID, Kind: events.ConnectFinished})
	})
}

// finishConnect records a failed connection attempt's terminal state and
// reports its event. Always called from the owning Context.
func (m *Manager) finishConnect(id uuid.UUID, ev events.Event) {
	m.mu.Lock()
	delete(m.peers, id)
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.events.Push(ev)
}
