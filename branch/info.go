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

// Package branch implements the data model from spec.md §3: the branch
// Uuid, immutable BranchInfo (local and remote), their on-wire Adv/Info
// message encodings (spec §6), and the Registry used to detect duplicate
// names/paths within a network, ported from
// original_source/yogi-core/src/objects/detail/branch/branch_info.cc.
package branch

import (
	"os"
	"sync"
	"time"

	yerr "github.com/nabbar/yogi/errors"
	"github.com/nabbar/yogi/varint"

	"github.com/google/uuid"
)

// Info is the immutable set of attributes every branch (local or remote)
// carries, per spec §3.
type Info struct {
	UUID            uuid.UUID
	Name            string
	Description     string
	NetworkName     string
	Path            string
	Hostname        string
	PID             int
	StartTime       time.Time
	Timeout         time.Duration // < 0 == infinite
	AdvInterval     time.Duration // < 0 == infinite / disabled
	GhostMode       bool
	TCPHost         string
	TCPPort         uint16
}

// LocalInfo is a local branch's Info plus the attributes only the local
// branch carries (spec §3): advertising interfaces, advertising endpoint,
// queue sizes, transceive byte limit. It pre-renders its wire messages
// once at construction, since Info is immutable thereafter.
type LocalInfo struct {
	Info

	AdvInterfaces    []string
	AdvAddr          string
	AdvPort          uint16
	TxQueueSize      int
	RxQueueSize      int
	TransceiveLimit  int

	advMsg  []byte
	infoMsg []byte
}

// NewLocalInfo constructs a LocalInfo with a freshly generated Uuid and
// pre-renders its Adv/Info wire messages.
func NewLocalInfo(name, description, networkName, path string, tcpHost string, tcpPort uint16,
	timeout, advInterval time.Duration, ghostMode bool,
	advInterfaces []string, advAddr string, advPort uint16,
	txQueueSize, rxQueueSize, transceiveLimit int) *LocalInfo {

	hostname, _ := os.Hostname()

	li := &LocalInfo{
		Info: Info{
			UUID:        uuid.New(),
			Name:        name,
			Description: description,
			NetworkName: networkName,
			Path:        path,
			Hostname:    hostname,
			PID:         os.Getpid(),
			StartTime:   time.Now().UTC(),
			Timeout:     timeout,
			AdvInterval: advInterval,
			GhostMode:   ghostMode,
			TCPHost:     tcpHost,
			TCPPort:     tcpPort,
		},
		AdvInterfaces:   advInterfaces,
		AdvAddr:         advAddr,
		AdvPort:         advPort,
		TxQueueSize:     txQueueSize,
		RxQueueSize:     rxQueueSize,
		TransceiveLimit: transceiveLimit,
	}
	li.populateMessages()
	return li
}

func (li *LocalInfo) populateMessages() {
	adv := make([]byte, AdvertisingMessageSize)
	encodeAdvPrefix(adv, li.UUID, li.TCPPort)
	li.advMsg = adv

	w := &fieldWriter{}
	w.string(li.Name)
	w.string(li.Description)
	w.string(li.NetworkName)
	w.string(li.Path)
	w.string(li.Hostname)
	w.u32(uint32(li.PID))
	w.timestamp(li.StartTime)
	w.duration(li.Timeout)
	w.duration(li.AdvInterval)
	w.boolean(li.GhostMode)

	var lenBuf [varint.MaxLen]byte
	n := varint.Encode(uint64(len(w.buf)), lenBuf[:])

	msg := make([]byte, 0, AdvertisingMessageSize+n+len(w.buf))
	msg = append(msg, adv...)
	msg = append(msg, lenBuf[:n]...)
	msg = append(msg, w.buf...)
	li.infoMsg = msg
}

// AdvMessage returns the 25-byte advertising datagram for this branch.
func (li *LocalInfo) AdvMessage() []byte {
	return li.advMsg
}

// InfoMessage returns the full Info message (Adv prefix + body length +
// body) sent during the handshake (spec §4.7 step 1, §6).
func (li *LocalInfo) InfoMessage() []byte {
	return li.infoMsg
}

// ParseAdvMessage validates and decodes a 25-byte advertising datagram,
// per spec §4.6 step 1-2.
func ParseAdvMessage(buf []byte) (id uuid.UUID, tcpPort uint16, err yerr.Error) {
	return decodeAdvPrefix(buf)
}

// ParseInfoBody decodes an Info message body (the bytes after the Adv
// prefix and body-length varint) into an Info, given the peer's uuid and
// TCP host/port already known from the Adv prefix and the connection.
func ParseInfoBody(body []byte, id uuid.UUID, tcpHost string, tcpPort uint16) (Info, yerr.Error) {
	r := &fieldReader{buf: body}

	name, err := r.string()
	if err != nil {
		return Info{}, err
	}
	description, err := r.string()
	if err != nil {
		return Info{}, err
	}
	networkName, err := r.string()
	if err != nil {
		return Info{}, err
	}
	path, err := r.string()
	if err != nil {
		return Info{}, err
	}
	hostname, err := r.string()
	if err != nil {
		return Info{}, err
	}
	pid, err := r.u32()
	if err != nil {
		return Info{}, err
	}
	startTime, err := r.timestamp()
	if err != nil {
		return Info{}, err
	}
	timeout, err := r.duration()
	if err != nil {
		return Info{}, err
	}
	advInterval, err := r.duration()
	if err != nil {
		return Info{}, err
	}
	ghostMode, err := r.boolean()
	if err != nil {
		return Info{}, err
	}

	return Info{
		UUID:        id,
		Name:        name,
		Description: description,
		NetworkName: networkName,
		Path:        path,
		Hostname:    hostname,
		PID:         int(pid),
		StartTime:   startTime,
		Timeout:     timeout,
		AdvInterval: advInterval,
		GhostMode:   ghostMode,
		TCPHost:     tcpHost,
		TCPPort:     tcpPort,
	}, nil
}

// Registry tracks the branches currently known in a network, for the
// duplicate-name/duplicate-path checks in spec §4.7 step 9.
type Registry struct {
	mu       sync.RWMutex
	byUUID   map[uuid.UUID]Info
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byUUID: make(map[uuid.UUID]Info)}
}

// Add inserts or updates info, keyed by its UUID.
func (r *Registry) Add(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUUID[info.UUID] = info
}

// Remove drops the entry for id, if present.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byUUID, id)
}

// Get returns the registered Info for id, if any.
func (r *Registry) Get(id uuid.UUID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byUUID[id]
	return info, ok
}

// All returns a snapshot of every currently registered Info.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.byUUID))
	for _, info := range r.byUUID {
		out = append(out, info)
	}
	return out
}

// CheckDuplicate reports duplicate_branch_name or duplicate_branch_path
// if candidate's name or path collides with a different already-registered
// branch (spec §4.7 step 9).
func (r *Registry) CheckDuplicate(candidate Info) yerr.Error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, info := range r.byUUID {
		if id == candidate.UUID {
			continue
		}
		if info.Name == candidate.Name {
			return yerr.New(yerr.DuplicateBranchName)
		}
		if info.Path == candidate.Path {
			return yerr.New(yerr.DuplicateBranchPath)
		}
	}
	return nil
}
