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

package ipv6

import "github.com/redactedos/netstack/pkg/netaddr"

// MulticastKind selects the well-known multicast group MakeMulticast
// constructs, mirroring ipv6_mcast_kind_t.
type MulticastKind int

const (
	MulticastAllNodes MulticastKind = iota
	MulticastAllRouters
	MulticastMDNS
	MulticastSSDP
	MulticastDHCPv6Servers
	MulticastMLDv2Routers
	MulticastSolicitedNode
)

// IsLoopback reports whether ip is ::1.
func IsLoopback(ip netaddr.IPv6) bool {
	for i := 0; i < 15; i++ {
		if ip[i] != 0 {
			return false
		}
	}
	return ip[15] == 1
}

// IsMulticast reports whether ip is in ff00::/8.
func IsMulticast(ip netaddr.IPv6) bool { return ip[0] == 0xFF }

// IsULA reports whether ip is a unique local address, fc00::/7.
func IsULA(ip netaddr.IPv6) bool { return ip[0]&0xFE == 0xFC }

// IsLinkLocal reports whether ip is in fe80::/10.
func IsLinkLocal(ip netaddr.IPv6) bool { return ip[0] == 0xFE && ip[1]&0xC0 == 0x80 }

// CommonPrefixLen returns the number of leading bits a and b share, up
// to 128.
func CommonPrefixLen(a, b netaddr.IPv6) int {
	bits := 0
	for i := 0; i < 16; i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			bits += 8
			continue
		}
		for bpos := 7; bpos >= 0; bpos-- {
			if x&(1<<uint(bpos)) != 0 {
				return bits + (7 - bpos)
			}
		}
	}
	return 128
}

// MakeMulticast builds a well-known multicast address of the given
// scope (RFC 4291 §2.7's 4-bit scope field) and kind. unicast supplies
// the low 24 bits for MulticastSolicitedNode; it is ignored otherwise.
func MakeMulticast(scope byte, kind MulticastKind, unicast netaddr.IPv6) netaddr.IPv6 {
	var out netaddr.IPv6
	out[0] = 0xFF
	out[1] = scope & 0x0F

	switch kind {
	case MulticastAllNodes:
		out[15] = 0x01
	case MulticastAllRouters:
		out[15] = 0x02
	case MulticastMDNS:
		out[15] = 0xFB
	case MulticastSSDP:
		out[15] = 0x0C
	case MulticastDHCPv6Servers:
		out[11], out[12], out[13], out[14], out[15] = 0x00, 0x00, 0x01, 0x00, 0x02
	case MulticastMLDv2Routers:
		out[11], out[12], out[13], out[14], out[15] = 0x00, 0x00, 0x00, 0x00, 0x16
	case MulticastSolicitedNode:
		fallthrough
	default:
		out[11], out[12] = 0x01, 0xFF
		out[13], out[14], out[15] = unicast[13], unicast[14], unicast[15]
	}
	return out
}

// MulticastMAC derives the 33:33:xx:xx:xx:xx Ethernet address an IPv6
// multicast address maps to, per RFC 2464 §7.
func MulticastMAC(ip netaddr.IPv6) [6]byte {
	return [6]byte{0x33, 0x33, ip[12], ip[13], ip[14], ip[15]}
}
