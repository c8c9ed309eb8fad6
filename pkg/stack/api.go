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

package stack

import (
	"context"
	"time"

	"github.com/redactedos/netstack/pkg/dhcp"
	"github.com/redactedos/netstack/pkg/icmp"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/udp"
)

// UDPSocketCreate allocates an unbound UDP socket ready for Bind/SendTo.
func (s *Stack) UDPSocketCreate() *udp.Socket {
	return s.UDP.CreateSocket()
}

// UDPSocketBind binds sock to port (0 picks an ephemeral port), scoped
// either to the route table (l3 nil) or pinned to l3.
func (s *Stack) UDPSocketBind(sock *udp.Socket, l3 *iface.L3Ipv4Interface, port uint16) error {
	scope := ipv4.ScopeUnbound
	if l3 != nil {
		scope = ipv4.ScopeBoundL3
	}
	return s.UDP.BindUDP(sock, udp.BindSpec{Scope: scope, L3: l3}, port)
}

// UDPSendTo sends payload to dst through sock, net_socket_sendto.
func (s *Stack) UDPSendTo(ctx context.Context, sock *udp.Socket, dst netaddr.Endpoint, payload []byte) error {
	return s.UDP.SendTo(ctx, sock, dst, payload)
}

// UDPRecvFrom blocks for the next datagram on sock, net_socket_recvfrom.
func (s *Stack) UDPRecvFrom(ctx context.Context, sock *udp.Socket) (udp.Datagram, error) {
	return s.UDP.RecvFrom(ctx, sock)
}

// UDPSocketClose releases sock's port and queue.
func (s *Stack) UDPSocketClose(sock *udp.Socket) {
	s.UDP.CloseSocket(sock)
}

// ICMPPing issues one echo request and blocks for a matching reply,
// icmp_ping. A zero timeout uses cfg.RequestTimeout.
func (s *Stack) ICMPPing(ctx context.Context, dst netaddr.IPv4, id, seq uint16, timeout time.Duration, payload []byte) (icmp.Status, time.Duration, error) {
	if timeout == 0 {
		timeout = s.cfg.RequestTimeout
	}
	return s.ICMP.Ping(ctx, dst, id, seq, timeout, icmp.PingOpts{}, payload)
}

// ResolveA resolves name to an IPv4 address, dns_resolve_a.
func (s *Stack) ResolveA(ctx context.Context, name string) (netaddr.IPv4, error) {
	return s.DNS.ResolveA(ctx, name)
}

// ResolveAOnL3 resolves name using l3's configured DNS servers,
// dns_resolve_a_on_l3.
func (s *Stack) ResolveAOnL3(ctx context.Context, l3 *iface.L3Ipv4Interface, name string) (netaddr.IPv4, error) {
	return s.DNS.ResolveAOnL3(ctx, l3, name)
}

// ResolveAAAA resolves name to an IPv6 address, dns_resolve_aaaa.
func (s *Stack) ResolveAAAA(ctx context.Context, name string) (netaddr.IPv6, error) {
	return s.DNS.ResolveAAAA(ctx, name)
}

// ResolveAAAAOnL3 resolves name to an IPv6 address using l3's configured
// DNS servers, dns_resolve_aaaa_on_l3.
func (s *Stack) ResolveAAAAOnL3(ctx context.Context, l3 *iface.L3Ipv4Interface, name string) (netaddr.IPv6, error) {
	return s.DNS.ResolveAAAAOnL3(ctx, l3, name)
}

// ARPEntry is one resolved neighbor cache row, the "netctl arp"
// inspection surface.
type ARPEntry struct {
	IfIndex int
	IP      netaddr.IPv4
	MAC     [6]byte
	Static  bool
	TTLMs   uint32
}

// ARPEntries snapshots every interface's ARP table.
func (s *Stack) ARPEntries() []ARPEntry {
	var out []ARPEntry
	for _, l2 := range s.Manager.L2s() {
		for _, e := range l2.ARP.Snapshot() {
			out = append(out, ARPEntry{IfIndex: l2.IfIndex, IP: e.IP, MAC: e.MAC, Static: e.Static, TTLMs: e.TTLMs})
		}
	}
	return out
}

// DHCPStatus is one L3 interface's DHCP client FSM state, "netctl dhcp
// status".
type DHCPStatus struct {
	L3ID  uint32
	State dhcp.State
	Bound bool
}

// DHCPStatuses reports every DHCP-managed L3's current FSM state.
func (s *Stack) DHCPStatuses() []DHCPStatus {
	s.mu.Lock()
	clients := make(map[int]*dhcp.Client, len(s.dhcpByL2))
	for k, v := range s.dhcpByL2 {
		clients[k] = v
	}
	s.mu.Unlock()

	var out []DHCPStatus
	for ifindex, client := range clients {
		for _, l3 := range s.Manager.L3sOf(ifindex) {
			if l3.Mode != iface.ModeDHCP {
				continue
			}
			st, ok := client.StateOf(l3.L3ID)
			out = append(out, DHCPStatus{L3ID: l3.L3ID, State: st, Bound: ok && st == dhcp.StateBound})
		}
	}
	return out
}

// NTPClockStatus reports the disciplined clock's current view, "netctl
// ntp status".
type NTPClockStatus struct {
	Synchronized bool
	UnixMicros   uint64
	FreqPPM      float64
}

// NTPStatus reads the current disciplined time and frequency offset.
func (s *Stack) NTPStatus() NTPClockStatus {
	return NTPClockStatus{
		Synchronized: s.clock.IsSynchronized(),
		UnixMicros:   s.clock.NowUnixMicros(),
		FreqPPM:      s.clock.FrequencyPPM(),
	}
}
