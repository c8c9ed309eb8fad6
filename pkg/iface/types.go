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

// Package iface is the per-instance L2/L3 interface manager: one record
// per NIC (MAC, MTU, up/down, ARP table handle, sub-interfaces) and one
// record per IPv4 address bound to a NIC. The Manager and each
// L2Interface and L3Ipv4Interface guard their own fields with their own
// sync.RWMutex.
package iface

import (
	"sync"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
)

// MaxIPv4PerInterface bounds how many L3 sub-interfaces a single L2 may
// carry.
const MaxIPv4PerInterface = 4

// MaxIPv6PerInterface bounds the IPv6 side the same way.
const MaxIPv6PerInterface = 4

// Mode is the provisioning mode of an L3 IPv4 sub-interface.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeStatic
	ModeDHCP
)

func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeDHCP:
		return "dhcp"
	default:
		return "disabled"
	}
}

// RuntimeOpts holds the options a DHCP lease (or static inform) supplies
// beyond the bare ip/mask/gw triple.
type RuntimeOpts struct {
	DNS       [2]netaddr.IPv4
	NTP       [2]netaddr.IPv4
	MTU       int
	LeaseMs   uint32
	T1Ms      uint32
	T2Ms      uint32
	ServerIP  netaddr.IPv4
	Xid       uint32
}

// L2Interface is one NIC: MAC, MTU, up/down, and up to
// MaxIPv4PerInterface/MaxIPv6PerInterface sub-interfaces. A non-zero
// IfIndex implies Driver is non-nil.
type L2Interface struct {
	IfIndex    int
	Name       string
	MAC        [6]byte
	MTU        int
	HeaderSize int
	IsUp       bool
	Kind       netdev.Kind
	Driver     netdev.Driver
	ARP        *arp.Table

	mu   sync.RWMutex
	ipv4 []*L3Ipv4Interface
}

// L3Ipv4Interface is one IPv4 address bound to a parent L2.
type L3Ipv4Interface struct {
	L3ID        uint32
	ifindex     int // back-reference by index, not pointer, to avoid an L2<->L3 ownership cycle.
	Mode        Mode
	IsLocalhost bool

	mu      sync.RWMutex
	ip      netaddr.IPv4
	mask    netaddr.IPv4
	gw      netaddr.IPv4
	runtime RuntimeOpts
}

// IfIndex is the owning L2's index.
func (l3 *L3Ipv4Interface) IfIndex() int { return l3.ifindex }

// Snapshot returns the current ip/mask/gw/runtime under lock.
func (l3 *L3Ipv4Interface) Snapshot() (ip, mask, gw netaddr.IPv4, opts RuntimeOpts) {
	l3.mu.RLock()
	defer l3.mu.RUnlock()
	return l3.ip, l3.mask, l3.gw, l3.runtime
}

// IP returns the currently bound address (0 if unbound).
func (l3 *L3Ipv4Interface) IP() netaddr.IPv4 {
	l3.mu.RLock()
	defer l3.mu.RUnlock()
	return l3.ip
}

// Mask returns the currently bound subnet mask.
func (l3 *L3Ipv4Interface) Mask() netaddr.IPv4 {
	l3.mu.RLock()
	defer l3.mu.RUnlock()
	return l3.mask
}

// Gateway returns the currently bound default gateway.
func (l3 *L3Ipv4Interface) Gateway() netaddr.IPv4 {
	l3.mu.RLock()
	defer l3.mu.RUnlock()
	return l3.gw
}

// RuntimeOpts returns the currently bound runtime options.
func (l3 *L3Ipv4Interface) RuntimeOpts() RuntimeOpts {
	l3.mu.RLock()
	defer l3.mu.RUnlock()
	return l3.runtime
}

// Contains reports whether ip falls within this L3's configured subnet.
func (l3 *L3Ipv4Interface) Contains(ip netaddr.IPv4) bool {
	l3.mu.RLock()
	defer l3.mu.RUnlock()
	if l3.ip.IsUnspecified() {
		return false
	}
	return netaddr.SameSubnet(l3.ip, ip, l3.mask)
}
