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

package mdns

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/dns"
	"github.com/redactedos/netstack/pkg/eth"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/udp"
)

// transport is the single shared multicast socket the Responder and
// Querier both use — one bound port 5353, exactly as the original's
// mdns_socket_handle_v4() is shared between mdns_responder_tick and
// mdns_resolve_a/_aaaa. A single run goroutine demultiplexes
// incoming datagrams by message type (query vs. response) instead of
// letting two independent goroutines race to read the same socket.
type transport struct {
	l3     *iface.L3Ipv4Interface
	sender arp.FrameSender
	udp    *udp.Table
	sock   *udp.Socket

	mu      sync.Mutex
	pending map[uint16]chan dns.Message
	onQuery func(from netaddr.Endpoint, msg dns.Message)
}

func newTransport(sender arp.FrameSender, udpTable *udp.Table, l3 *iface.L3Ipv4Interface) (*transport, error) {
	sock := udpTable.CreateSocket()
	if err := udpTable.BindUDP(sock, udp.BindSpec{Scope: ipv4.ScopeUnbound}, MulticastPort); err != nil {
		return nil, err
	}
	return &transport{
		l3:      l3,
		sender:  sender,
		udp:     udpTable,
		sock:    sock,
		pending: make(map[uint16]chan dns.Message),
	}, nil
}

// run drains incoming datagrams until ctx ends, routing responses to
// any waiting Querier call and queries to the registered onQuery
// handler (the Responder).
func (t *transport) run(ctx context.Context) {
	for {
		d, err := t.udp.RecvFrom(ctx, t.sock)
		if err != nil {
			return
		}
		msg, err := dns.Decode(d.Data)
		if err != nil {
			klog.V(4).Infof("mdns: dropping malformed packet from %s: %v", d.From, err)
			continue
		}

		if msg.Flags&dns.FlagResponse != 0 {
			t.mu.Lock()
			ch, ok := t.pending[msg.ID]
			t.mu.Unlock()
			if ok {
				select {
				case ch <- msg:
				default:
				}
			}
			continue
		}

		t.mu.Lock()
		handler := t.onQuery
		t.mu.Unlock()
		if handler != nil {
			handler(d.From, msg)
		}
	}
}

// awaitResponse registers id as pending and returns a channel that
// receives the first matching response, plus a cleanup func.
func (t *transport) awaitResponse(id uint16) (<-chan dns.Message, func()) {
	ch := make(chan dns.Message, 4)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}
}

func (t *transport) setQueryHandler(fn func(from netaddr.Endpoint, msg dns.Message)) {
	t.mu.Lock()
	t.onQuery = fn
	t.mu.Unlock()
}

// sendMulticast wraps payload in a UDP/IPv4/Ethernet frame addressed to
// the mDNS group and hands it directly to sender, bypassing both
// pkg/ipv4.Stack.Send's ARP resolution (multicast has no ARP entry) and
// pkg/udp.Table.SendTo's route-table lookup — the same bypass pattern
// pkg/dhcp.Client.sendVia uses for broadcast DISCOVERs on an
// unconfigured L3.
func (t *transport) sendMulticast(payload []byte) error {
	datagram := udp.Encode(t.l3.IP(), MulticastGroup, MulticastPort, MulticastPort, payload)
	header := ipv4.EncodeHeader(ipv4.Header{
		TTL:      multicastTTL,
		Protocol: ipv4.ProtoUDP,
		Src:      t.l3.IP(),
		Dst:      MulticastGroup,
	}, len(datagram))
	frame := append(header, datagram...)
	return t.sender.SendFrame(t.l3.IfIndex(), multicastMAC(MulticastGroup), eth.TypeIPv4, frame)
}
