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

// Package discovery implements the UDP multicast advertising and receiving
// side of spec.md §4.6, ported from the interface-selection rules in
// original_source/yogi-core/src/utils/system.{h,cc} (GetFilteredNetworkInterfaces)
// and the "all"/"localhost" literals from spec §6.
package discovery

import (
	"net"
	"strings"
)

// IP version selector for interface/address filtering (spec §4.6).
type IPVersion int

const (
	IPAny IPVersion = iota
	IPv4Only
	IPv6Only
)

const (
	ifaceAll       = "all"
	ifaceLocalhost = "localhost"
)

// SelectInterfaces returns the network interfaces matching names, where
// names may contain the literal "all" (every up interface), "localhost"
// (loopback interfaces), or concrete interface names/MAC addresses.
func SelectInterfaces(names []string) ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	wantAll := containsFold(names, ifaceAll)
	wantLoopback := containsFold(names, ifaceLocalhost)

	var out []net.Interface
	for _, ifc := range all {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		isLoopback := ifc.Flags&net.FlagLoopback != 0

		switch {
		case wantAll:
			out = append(out, ifc)
		case wantLoopback && isLoopback:
			out = append(out, ifc)
		case matchesNameOrMAC(ifc, names):
			out = append(out, ifc)
		}
	}
	return out, nil
}

func matchesNameOrMAC(ifc net.Interface, names []string) bool {
	mac := ifc.HardwareAddr.String()
	for _, n := range names {
		if strings.EqualFold(n, ifc.Name) {
			return true
		}
		if mac != "" && strings.EqualFold(n, mac) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// FilterAddrsByVersion keeps only the addresses matching version.
func FilterAddrsByVersion(addrs []net.IP, version IPVersion) []net.IP {
	if version == IPAny {
		return addrs
	}
	var out []net.IP
	for _, a := range addrs {
		is4 := a.To4() != nil
		if (version == IPv4Only) == is4 {
			out = append(out, a)
		}
	}
	return out
}
