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
	"fmt"
	"strings"
	"time"

	"github.com/redactedos/netstack/pkg/dns"
	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/rng"
)

// Querier resolves other hosts' ".local" names over multicast DNS. It
// implements dns.MDNSQuerier, grounded on dns_mdns.c's
// perform_mdns_query_once / mdns_resolve_a / mdns_resolve_aaaa.
type Querier struct {
	t   *transport
	rng *rng.Source
}

func newQuerier(t *transport, rngSrc *rng.Source) *Querier {
	return &Querier{t: t, rng: rngSrc}
}

// QueryA resolves name's A record over mDNS, waiting up to
// QueryTimeoutA for a matching response.
func (q *Querier) QueryA(ctx context.Context, name string) (netaddr.IPv4, uint32, error) {
	data, ttl, err := q.queryOnce(ctx, name, dns.TypeA, QueryTimeoutA)
	if err != nil {
		return netaddr.Zero, 0, err
	}
	if len(data) != 4 {
		return netaddr.Zero, 0, fmt.Errorf("%w: malformed mdns A record for %q", neterr.WireFormat, name)
	}
	return netaddr.IPv4FromBytes(data[0], data[1], data[2], data[3]), ttl, nil
}

// QueryAAAA resolves name's AAAA record over mDNS.
func (q *Querier) QueryAAAA(ctx context.Context, name string) (netaddr.IPv6, uint32, error) {
	data, ttl, err := q.queryOnce(ctx, name, dns.TypeAAAA, QueryTimeoutAAAA)
	if err != nil {
		return netaddr.IPv6{}, 0, err
	}
	if len(data) != 16 {
		return netaddr.IPv6{}, 0, fmt.Errorf("%w: malformed mdns AAAA record for %q", neterr.WireFormat, name)
	}
	var ip netaddr.IPv6
	copy(ip[:], data)
	return ip, ttl, nil
}

func (q *Querier) queryOnce(ctx context.Context, name string, qtype uint16, timeout time.Duration) ([]byte, uint32, error) {
	id := uint16(q.rng.Uint32())
	payload, err := dns.EncodeQuery(id, name, qtype)
	if err != nil {
		return nil, 0, err
	}

	ch, cleanup := q.t.awaitResponse(id)
	defer cleanup()

	if err := q.t.sendMulticast(payload); err != nil {
		return nil, 0, err
	}

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case msg := <-ch:
			for _, rr := range msg.Answers {
				if rr.Type == qtype && rr.Class&0x7FFF == dns.ClassIN && strings.EqualFold(rr.Name, name) {
					return rr.Data, rr.TTL, nil
				}
			}
		case <-qctx.Done():
			return nil, 0, neterr.Timeout
		}
	}
}
