/*
Copyright 2026 The redactedos-net Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package iface

import (
	"sync"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
)

// MaxL2Interfaces bounds the interface table.
const MaxL2Interfaces = 8

// Manager owns every L2Interface, every L3Ipv4Interface, and the route
// table those L3 bindings populate. One Manager per stack instance.
type Manager struct {
	mu      sync.RWMutex
	l2s     map[int]*L2Interface
	l3s     map[uint32]*L3Ipv4Interface
	nextIdx int
	nextL3  uint32
	Routes  *RouteTable
}

// NewManager returns an empty Manager with an empty RouteTable.
func NewManager() *Manager {
	return &Manager{
		l2s:    make(map[int]*L2Interface),
		l3s:    make(map[uint32]*L3Ipv4Interface),
		Routes: NewRouteTable(),
	}
}

// AddL2 registers a new NIC and returns its L2Interface. The ARP table
// is created here so the interface is immediately usable by the
// dispatch loop.
func (m *Manager) AddL2(name string, mac [6]byte, mtu, headerSize int, kind netdev.Kind, drv netdev.Driver) (*L2Interface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.l2s) >= MaxL2Interfaces {
		return nil, neterr.Busy
	}
	m.nextIdx++
	l2 := &L2Interface{
		IfIndex:    m.nextIdx,
		Name:       name,
		MAC:        mac,
		MTU:        mtu,
		HeaderSize: headerSize,
		IsUp:       true,
		Kind:       kind,
		Driver:     drv,
		ARP:        arp.NewTable(),
	}
	m.l2s[l2.IfIndex] = l2
	return l2, nil
}

// ByIfIndex looks up an L2Interface.
func (m *Manager) ByIfIndex(ifindex int) (*L2Interface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l2, ok := m.l2s[ifindex]
	return l2, ok
}

// ByName looks up an L2Interface by its assigned name (eth0, lo0, ...).
func (m *Manager) ByName(name string) (*L2Interface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l2 := range m.l2s {
		if l2.Name == name {
			return l2, true
		}
	}
	return nil, false
}

// L2s returns every registered L2Interface.
func (m *Manager) L2s() []*L2Interface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*L2Interface, 0, len(m.l2s))
	for _, l2 := range m.l2s {
		out = append(out, l2)
	}
	return out
}

// AddL3Ipv4 creates a new IPv4 sub-interface bound to ifindex, subject
// to MaxIPv4PerInterface.
func (m *Manager) AddL3Ipv4(ifindex int, mode Mode, isLocalhost bool) (*L3Ipv4Interface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l2, ok := m.l2s[ifindex]
	if !ok {
		return nil, neterr.NotFound
	}
	l2.mu.Lock()
	defer l2.mu.Unlock()
	if len(l2.ipv4) >= MaxIPv4PerInterface {
		return nil, neterr.Busy
	}
	m.nextL3++
	l3 := &L3Ipv4Interface{
		L3ID:        m.nextL3,
		ifindex:     ifindex,
		Mode:        mode,
		IsLocalhost: isLocalhost,
	}
	l2.ipv4 = append(l2.ipv4, l3)
	m.l3s[l3.L3ID] = l3
	return l3, nil
}

// L3ByID looks up an L3Ipv4Interface.
func (m *Manager) L3ByID(id uint32) (*L3Ipv4Interface, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l3, ok := m.l3s[id]
	return l3, ok
}

// L3sOf returns every L3Ipv4Interface bound to ifindex.
func (m *Manager) L3sOf(ifindex int) []*L3Ipv4Interface {
	m.mu.RLock()
	l2, ok := m.l2s[ifindex]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	l2.mu.RLock()
	defer l2.mu.RUnlock()
	out := make([]*L3Ipv4Interface, len(l2.ipv4))
	copy(out, l2.ipv4)
	return out
}

// L3Update rewrites an L3Ipv4Interface's ip/mask/gw/runtime and
// refreshes the route table's direct and default routes for it.
// fromDHCP must be true when the caller is the DHCP client state
// machine; a STATIC-mode caller is rejected from touching a DHCP-owned
// binding — in DHCP mode only the DHCP daemon writes ip/mask/gw.
func (m *Manager) L3Update(l3 *L3Ipv4Interface, ip, mask, gw netaddr.IPv4, opts RuntimeOpts, fromDHCP bool) error {
	if l3.Mode == ModeDHCP && !fromDHCP {
		return neterr.InvalidArgument
	}
	l3.mu.Lock()
	l3.ip, l3.mask, l3.gw, l3.runtime = ip, mask, gw, opts
	ifindex := l3.ifindex
	l3.mu.Unlock()

	m.Routes.RemoveInterface(ifindex)
	if !ip.IsUnspecified() {
		m.Routes.AddDirect(ip.Network(mask), mask, ifindex)
		if !gw.IsUnspecified() {
			m.Routes.AddDefault(gw, ifindex)
		}
	}
	return nil
}

// LocalIPv4s implements arp.AddrSource: every bound, non-disabled IPv4
// address on ifindex.
func (m *Manager) LocalIPv4s(ifindex int) []arp.LocalAddr {
	l3s := m.L3sOf(ifindex)
	out := make([]arp.LocalAddr, 0, len(l3s))
	for _, l3 := range l3s {
		ip, mask, _, _ := l3.Snapshot()
		if l3.Mode == ModeDisabled || ip.IsUnspecified() {
			continue
		}
		out = append(out, arp.LocalAddr{IP: ip, Mask: mask})
	}
	return out
}

// FindLocalL3 returns the L3Ipv4Interface on ifindex whose bound
// address equals dst, if any.
func (m *Manager) FindLocalL3(ifindex int, dst netaddr.IPv4) (*L3Ipv4Interface, bool) {
	for _, l3 := range m.L3sOf(ifindex) {
		ip, _, _, _ := l3.Snapshot()
		if ip == dst {
			return l3, true
		}
	}
	return nil, false
}
