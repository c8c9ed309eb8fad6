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

// Package netaddr holds the address types shared by every layer —
// host-order IPv4, 16-byte IPv6, and the tagged L4 endpoint — so that
// arp, iface, ipv4, udp, dhcp, dns and ntp can all agree on one
// representation without importing each other.
package netaddr

import (
	"fmt"
	"net"
)

// IPv4 is an IPv4 address stored host-order (ip, mask, gw all
// host-order).
type IPv4 uint32

// Zero is the unspecified address 0.0.0.0.
const Zero IPv4 = 0

// Broadcast is the limited broadcast address 255.255.255.255.
const Broadcast IPv4 = 0xFFFFFFFF

// Loopback is 127.0.0.1.
const Loopback IPv4 = 0x7F000001

// IPv4FromBytes builds a host-order IPv4 from four network-order octets.
func IPv4FromBytes(a, b, c, d byte) IPv4 {
	return IPv4(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// IPv4FromNetIP converts a net.IP (which is always network/big-endian
// byte order) to a host-order IPv4. It returns (0, false) if ip is not a
// valid IPv4 address.
func IPv4FromNetIP(ip net.IP) (IPv4, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return IPv4FromBytes(v4[0], v4[1], v4[2], v4[3]), true
}

// ParseIPv4 parses a dotted-quad string into a host-order IPv4.
func ParseIPv4(s string) (IPv4, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, false
	}
	return IPv4FromNetIP(ip)
}

// Bytes returns the four network-order octets.
func (a IPv4) Bytes() [4]byte {
	return [4]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}
}

// NetIP converts back to a net.IP.
func (a IPv4) NetIP() net.IP {
	b := a.Bytes()
	return net.IPv4(b[0], b[1], b[2], b[3])
}

func (a IPv4) String() string {
	b := a.Bytes()
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

// IsUnspecified reports whether a is 0.0.0.0.
func (a IPv4) IsUnspecified() bool { return a == Zero }

// IsBroadcast reports whether a is 255.255.255.255.
func (a IPv4) IsBroadcast() bool { return a == Broadcast }

// IsLoopback reports whether a is in 127.0.0.0/8.
func (a IPv4) IsLoopback() bool { return a>>24 == 127 }

// Network returns the network address of a/mask.
func (a IPv4) Network(mask IPv4) IPv4 { return a & mask }

// DirectedBroadcast returns the subnet's directed broadcast address.
func (a IPv4) DirectedBroadcast(mask IPv4) IPv4 { return (a & mask) | ^mask }

// SameSubnet reports whether a and b share the network defined by mask.
func SameSubnet(a, b, mask IPv4) bool { return a&mask == b&mask }

// CIDRMask returns the IPv4 mask for a /prefixLen network.
func CIDRMask(prefixLen int) IPv4 {
	if prefixLen <= 0 {
		return 0
	}
	if prefixLen >= 32 {
		return 0xFFFFFFFF
	}
	return IPv4(0xFFFFFFFF << (32 - prefixLen))
}

// IPv6 is a 16-byte IPv6 address.
type IPv6 [16]byte

func (a IPv6) String() string {
	return net.IP(a[:]).String()
}

// IsUnspecified reports whether a is ::.
func (a IPv6) IsUnspecified() bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// ParseIPv6 parses a textual IPv6 address.
func ParseIPv6(s string) (IPv6, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IPv6{}, false
	}
	v6 := ip.To16()
	if v6 == nil || ip.To4() != nil {
		return IPv6{}, false
	}
	var out IPv6
	copy(out[:], v6)
	return out, true
}

// LinkLocalFromMAC derives the IPv6 link-local address fe80::/64 +
// EUI-64(mac) (full ND/DAD is out of scope).
func LinkLocalFromMAC(mac [6]byte) IPv6 {
	var out IPv6
	out[0] = 0xfe
	out[1] = 0x80
	eui := EUI64FromMAC(mac)
	copy(out[8:], eui[:])
	return out
}

// EUI64FromMAC expands a 48-bit MAC into a 64-bit interface identifier
// per RFC 2464: insert 0xFFFE in the middle and flip the universal/local
// bit.
func EUI64FromMAC(mac [6]byte) [8]byte {
	var eui [8]byte
	eui[0] = mac[0] ^ 0x02
	eui[1] = mac[1]
	eui[2] = mac[2]
	eui[3] = 0xFF
	eui[4] = 0xFE
	eui[5] = mac[3]
	eui[6] = mac[4]
	eui[7] = mac[5]
	return eui
}

// Endpoint is a tagged (address family, address, port) union, used
// uniformly by UDP, DNS, and DHCP.
type Endpoint struct {
	IsV6 bool
	V4   IPv4
	V6   IPv6
	Port uint16
}

// V4Endpoint builds an IPv4 Endpoint.
func V4Endpoint(ip IPv4, port uint16) Endpoint {
	return Endpoint{V4: ip, Port: port}
}

// V6Endpoint builds an IPv6 Endpoint.
func V6Endpoint(ip IPv6, port uint16) Endpoint {
	return Endpoint{IsV6: true, V6: ip, Port: port}
}

func (e Endpoint) String() string {
	if e.IsV6 {
		return fmt.Sprintf("[%s]:%d", e.V6, e.Port)
	}
	return fmt.Sprintf("%s:%d", e.V4, e.Port)
}
