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

package dns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/rng"
	"github.com/redactedos/netstack/pkg/udp"
)

// ServerPort is the well-known unicast DNS port.
const ServerPort = 53

// retryInterval paces the recv-loop poll, mirroring dns.c's msleep(50)
// between socket_recvfrom_udp_ex attempts.
const retryInterval = 50 * time.Millisecond

// MDNSQuerier resolves a ".local" name over multicast DNS. pkg/mdns
// implements this; Resolver depends on the interface rather than the
// concrete package so dns and mdns don't import each other — the same
// dependency-inversion shape pkg/dhcp uses for its ARP conflict probe.
type MDNSQuerier interface {
	QueryA(ctx context.Context, name string) (netaddr.IPv4, uint32, error)
	QueryAAAA(ctx context.Context, name string) (netaddr.IPv6, uint32, error)
}

// Resolver is the unicast DNS client: cache lookup, server selection
// from an L3's runtime options, query/retry over a shared UDP socket,
// and the ".local" → mDNS handoff.
type Resolver struct {
	mgr   *iface.Manager
	udp   *udp.Table
	rng   *rng.Source
	cache *Cache
	sock  *udp.Socket
	mdns  MDNSQuerier
}

// NewResolver builds a Resolver with its own ephemeral query socket.
func NewResolver(mgr *iface.Manager, udpTable *udp.Table, rngSrc *rng.Source) (*Resolver, error) {
	sock := udpTable.CreateSocket()
	if err := udpTable.BindUDP(sock, udp.BindSpec{Scope: ipv4.ScopeUnbound}, 0); err != nil {
		return nil, err
	}
	return &Resolver{
		mgr:   mgr,
		udp:   udpTable,
		rng:   rngSrc,
		cache: NewCache(),
		sock:  sock,
	}, nil
}

// SetMDNSQuerier wires in the mDNS fallback used for ".local" names.
func (r *Resolver) SetMDNSQuerier(q MDNSQuerier) { r.mdns = q }

// Tick ages the answer cache by deltaMs.
func (r *Resolver) Tick(deltaMs uint32) { r.cache.Tick(deltaMs) }

func isLocalName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".local")
}

// ResolveA resolves name to an IPv4 address using the first interface
// that has a DNS server configured.
func (r *Resolver) ResolveA(ctx context.Context, name string) (netaddr.IPv4, error) {
	return r.resolveA(ctx, nil, name)
}

// ResolveAOnL3 resolves name using l3's configured DNS servers.
func (r *Resolver) ResolveAOnL3(ctx context.Context, l3 *iface.L3Ipv4Interface, name string) (netaddr.IPv4, error) {
	return r.resolveA(ctx, l3, name)
}

// ResolveAAAA resolves name to an IPv6 address using the first
// interface that has a DNS server configured.
func (r *Resolver) ResolveAAAA(ctx context.Context, name string) (netaddr.IPv6, error) {
	return r.resolveAAAA(ctx, nil, name)
}

// ResolveAAAAOnL3 resolves name using l3's configured DNS servers.
func (r *Resolver) ResolveAAAAOnL3(ctx context.Context, l3 *iface.L3Ipv4Interface, name string) (netaddr.IPv6, error) {
	return r.resolveAAAA(ctx, l3, name)
}

func (r *Resolver) resolveA(ctx context.Context, l3 *iface.L3Ipv4Interface, name string) (netaddr.IPv4, error) {
	if addr, ok := r.cache.Get(name, TypeA); ok {
		return ipv4FromAddr(addr), nil
	}

	if isLocalName(name) {
		ip, ttlS, err := r.queryMDNSA(ctx, name)
		if err != nil {
			return netaddr.Zero, err
		}
		r.cache.Put(name, TypeA, addrFromIPv4(ip), ttlMsFromSeconds(ttlS))
		return ip, nil
	}

	primary, secondary, ok := r.pickDNS(l3)
	if !ok {
		return netaddr.Zero, fmt.Errorf("%w: no dns server configured", neterr.NotFound)
	}
	ip, ttlS, err := r.queryBothA(ctx, primary, secondary, name)
	if err != nil {
		return netaddr.Zero, err
	}
	r.cache.Put(name, TypeA, addrFromIPv4(ip), ttlMsFromSeconds(ttlS))
	return ip, nil
}

func (r *Resolver) resolveAAAA(ctx context.Context, l3 *iface.L3Ipv4Interface, name string) (netaddr.IPv6, error) {
	if addr, ok := r.cache.Get(name, TypeAAAA); ok {
		return ipv6FromAddr(addr), nil
	}

	if isLocalName(name) {
		ip, ttlS, err := r.queryMDNSAAAA(ctx, name)
		if err != nil {
			return netaddr.IPv6{}, err
		}
		r.cache.Put(name, TypeAAAA, addrFromIPv6(ip), ttlMsFromSeconds(ttlS))
		return ip, nil
	}

	primary, secondary, ok := r.pickDNS(l3)
	if !ok {
		return netaddr.IPv6{}, fmt.Errorf("%w: no dns server configured", neterr.NotFound)
	}
	ip, ttlS, err := r.queryBothAAAA(ctx, primary, secondary, name)
	if err != nil {
		return netaddr.IPv6{}, err
	}
	r.cache.Put(name, TypeAAAA, addrFromIPv6(ip), ttlMsFromSeconds(ttlS))
	return ip, nil
}

func (r *Resolver) queryMDNSA(ctx context.Context, name string) (netaddr.IPv4, uint32, error) {
	if r.mdns == nil {
		return netaddr.Zero, 0, fmt.Errorf("%w: no mdns querier configured", neterr.NotFound)
	}
	return r.mdns.QueryA(ctx, name)
}

func (r *Resolver) queryMDNSAAAA(ctx context.Context, name string) (netaddr.IPv6, uint32, error) {
	if r.mdns == nil {
		return netaddr.IPv6{}, 0, fmt.Errorf("%w: no mdns querier configured", neterr.NotFound)
	}
	return r.mdns.QueryAAAA(ctx, name)
}

// pickDNS returns the (primary, secondary) servers configured on l3, or
// on the first L3 interface that has one configured if l3 is nil,
// matching pick_dns_on_l3 / pick_dns_first_iface.
func (r *Resolver) pickDNS(l3 *iface.L3Ipv4Interface) (primary, secondary netaddr.IPv4, ok bool) {
	if l3 != nil {
		opts := l3.RuntimeOpts()
		return opts.DNS[0], opts.DNS[1], !opts.DNS[0].IsUnspecified() || !opts.DNS[1].IsUnspecified()
	}
	for _, l2 := range r.mgr.L2s() {
		for _, v4 := range r.mgr.L3sOf(l2.IfIndex) {
			opts := v4.RuntimeOpts()
			if !opts.DNS[0].IsUnspecified() || !opts.DNS[1].IsUnspecified() {
				return opts.DNS[0], opts.DNS[1], true
			}
		}
	}
	return netaddr.Zero, netaddr.Zero, false
}

// queryBothA tries primary then secondary; this resolver never exposes
// a way to pin one server explicitly, since nothing calls for it.
func (r *Resolver) queryBothA(ctx context.Context, primary, secondary netaddr.IPv4, name string) (netaddr.IPv4, uint32, error) {
	first, second := orderServers(primary, secondary)
	data, ttl, err := r.queryOnce(ctx, first, name, TypeA)
	if err == nil {
		return bytesToIPv4(data), ttl, nil
	}
	if !second.IsUnspecified() && second != first {
		data, ttl, err = r.queryOnce(ctx, second, name, TypeA)
		if err == nil {
			return bytesToIPv4(data), ttl, nil
		}
	}
	return netaddr.Zero, 0, err
}

func (r *Resolver) queryBothAAAA(ctx context.Context, primary, secondary netaddr.IPv4, name string) (netaddr.IPv6, uint32, error) {
	first, second := orderServers(primary, secondary)
	data, ttl, err := r.queryOnce(ctx, first, name, TypeAAAA)
	if err == nil {
		return bytesToIPv6(data), ttl, nil
	}
	if !second.IsUnspecified() && second != first {
		data, ttl, err = r.queryOnce(ctx, second, name, TypeAAAA)
		if err == nil {
			return bytesToIPv6(data), ttl, nil
		}
	}
	return netaddr.IPv6{}, 0, err
}

func orderServers(primary, secondary netaddr.IPv4) (first, second netaddr.IPv4) {
	if !primary.IsUnspecified() {
		return primary, secondary
	}
	return secondary, primary
}

// queryOnce sends one question to server and waits (re-checking
// incoming datagrams against the question's transaction id and the
// server's address) until ctx ends.
func (r *Resolver) queryOnce(ctx context.Context, server netaddr.IPv4, name string, qtype uint16) ([]byte, uint32, error) {
	if server.IsUnspecified() {
		return nil, 0, fmt.Errorf("%w: no dns server configured", neterr.NotFound)
	}
	id := uint16(r.rng.Uint32())
	query, err := EncodeQuery(id, name, qtype)
	if err != nil {
		return nil, 0, err
	}
	if err := r.udp.SendTo(ctx, r.sock, netaddr.V4Endpoint(server, ServerPort), query); err != nil {
		return nil, 0, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, 0, neterr.Timeout
		default:
		}

		recvCtx, cancel := context.WithTimeout(ctx, retryInterval)
		d, err := r.udp.RecvFrom(recvCtx, r.sock)
		cancel()
		if err != nil {
			continue
		}
		if d.From.IsV6 || d.From.V4 != server || d.From.Port != ServerPort {
			continue
		}
		msg, err := Decode(d.Data)
		if err != nil {
			klog.V(4).Infof("dns: dropping malformed response from %s: %v", server, err)
			continue
		}
		if msg.ID != id {
			continue
		}
		if msg.Rcode() == RcodeNXDomain {
			return nil, 0, fmt.Errorf("%w: nxdomain for %q", neterr.NotFound, name)
		}
		for _, rr := range msg.Answers {
			if rr.Type == qtype && rr.Class&0x7FFF == ClassIN && strings.EqualFold(rr.Name, name) {
				return rr.Data, rr.TTL, nil
			}
		}
	}
}

func ttlMsFromSeconds(ttlS uint32) uint32 {
	const maxMs = 0xFFFFFFFF
	if ttlS > maxMs/1000 {
		return maxMs
	}
	return ttlS * 1000
}

func addrFromIPv4(ip netaddr.IPv4) [16]byte {
	var a [16]byte
	b := ip.Bytes()
	copy(a[:4], b[:])
	return a
}

func ipv4FromAddr(a [16]byte) netaddr.IPv4 {
	return netaddr.IPv4FromBytes(a[0], a[1], a[2], a[3])
}

func addrFromIPv6(ip netaddr.IPv6) [16]byte { return [16]byte(ip) }

func ipv6FromAddr(a [16]byte) netaddr.IPv6 { return netaddr.IPv6(a) }

func bytesToIPv4(b []byte) netaddr.IPv4 {
	if len(b) != 4 {
		return netaddr.Zero
	}
	return netaddr.IPv4FromBytes(b[0], b[1], b[2], b[3])
}

func bytesToIPv6(b []byte) netaddr.IPv6 {
	var a netaddr.IPv6
	if len(b) == 16 {
		copy(a[:], b)
	}
	return a
}
