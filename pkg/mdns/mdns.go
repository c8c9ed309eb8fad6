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

// Package mdns implements multicast DNS over ".local": a Responder
// answering queries for the local host name and any registered
// services, and a Querier resolving other hosts' ".local" names. Both
// share one multicast UDP transport.
//
// IPv6 multicast (ff02::fb) is not wired here: pkg/udp's socket table
// only encodes/routes IPv4 datagrams, and IPv6 support in this stack is
// limited to address parsing and link-local derivation with no
// transport, so both the Responder and Querier operate over the IPv4
// group 224.0.0.251 exclusively — an AAAA question can still be asked
// and answered over that transport, it simply never rides an IPv6
// frame.
package mdns

import (
	"context"
	"fmt"
	"time"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/rng"
	"github.com/redactedos/netstack/pkg/udp"
)

// MulticastPort is the well-known mDNS UDP port.
const MulticastPort = 5353

// MulticastGroup is the IPv4 mDNS multicast group, 224.0.0.251.
var MulticastGroup = netaddr.IPv4FromBytes(224, 0, 0, 251)

// Multicast TTL mDNS packets carry, RFC 6762 §11.
const multicastTTL = 255

// Announce/keepalive/goodbye cadence.
const (
	AnnounceBurstCount   = 3
	AnnounceBurstSpacing = 250 * time.Millisecond
	KeepaliveInterval    = 60 * time.Second
	GoodbyeBurstCount    = 3
)

// Query timeouts, grounded on dns.c's MDNS_TIMEOUT_A_MS/MDNS_TIMEOUT_AAAA_MS.
const (
	QueryTimeoutA    = 500 * time.Millisecond
	QueryTimeoutAAAA = 300 * time.Millisecond
)

// recordTTL is the TTL (seconds) this responder puts on its own answers.
const recordTTL = 120

// multicastMAC derives the Ethernet multicast address for an IPv4
// multicast group per RFC 1112: 01-00-5E + low 23 bits of the address.
func multicastMAC(ip netaddr.IPv4) [6]byte {
	b := ip.Bytes()
	return [6]byte{0x01, 0x00, 0x5e, b[1] & 0x7F, b[2], b[3]}
}

// Hostname derives this host's mDNS name, "redactedos-<EUI-8 hex>.local".
func Hostname(mac [6]byte) string {
	eui := netaddr.EUI64FromMAC(mac)
	return fmt.Sprintf("redactedos-%x.local", eui[:])
}

// New builds the shared transport plus a Responder and Querier over
// it, and starts the transport's single receive loop for the lifetime
// of ctx. Callers drive the Responder's announce/keepalive/goodbye
// cadence separately via Responder.Run.
func New(ctx context.Context, sender arp.FrameSender, udpTable *udp.Table, l3 *iface.L3Ipv4Interface, mac [6]byte, rngSrc *rng.Source) (*Responder, *Querier, error) {
	t, err := newTransport(sender, udpTable, l3)
	if err != nil {
		return nil, nil, err
	}
	go t.run(ctx)

	responder := newResponder(t, mac, l3.IP())
	querier := newQuerier(t, rngSrc)
	return responder, querier, nil
}
