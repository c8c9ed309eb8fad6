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
	"testing"
	"time"

	"github.com/redactedos/netstack/pkg/dns"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/rng"
	"github.com/redactedos/netstack/pkg/udp"
)

func buildQuerier(t *testing.T) (*Querier, *udp.Table, *iface.L3Ipv4Interface, int) {
	t.Helper()
	mgr := iface.NewManager()
	drv := netdev.NewMemDriver([6]byte{1, 2, 3, 4, 5, 6}, 1500, netdev.KindEthernet)
	l2, err := mgr.AddL2("eth0", drv.MAC(), 1500, 0, netdev.KindEthernet, drv)
	if err != nil {
		t.Fatalf("AddL2: %v", err)
	}
	l3, err := mgr.AddL3Ipv4(l2.IfIndex, iface.ModeStatic, false)
	if err != nil {
		t.Fatalf("AddL3Ipv4: %v", err)
	}
	ip, _ := netaddr.ParseIPv4("10.0.0.5")
	mask, _ := netaddr.ParseIPv4("255.255.255.0")
	if err := mgr.L3Update(l3, ip, mask, netaddr.Zero, l3.RuntimeOpts(), false); err != nil {
		t.Fatalf("L3Update: %v", err)
	}

	sender := &capturingSender{}
	ipv4Stack := ipv4.NewStack(mgr, sender)
	udpTable := udp.NewTable(ipv4Stack)

	tr, err := newTransport(sender, udpTable, l3)
	if err != nil {
		t.Fatalf("newTransport: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go tr.run(ctx)

	return newQuerier(tr, rng.NewSource()), udpTable, l3, l2.IfIndex
}

func TestQuerierQueryAReceivesResponse(t *testing.T) {
	q, udpTable, l3, ifindex := buildQuerier(t)

	result := make(chan netaddr.IPv4, 1)
	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), QueryTimeoutA)
		defer cancel()
		ip, _, err := q.QueryA(ctx, "other-host.local")
		if err != nil {
			errCh <- err
			return
		}
		result <- ip
	}()

	// Find the transaction ID the querier used by decoding its own
	// pending map isn't exposed; instead answer any outstanding query
	// by scanning q.t.pending, mirroring how a real responder would
	// reply to whatever ID it observed on the wire.
	var id uint16
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		q.t.mu.Lock()
		for k := range q.t.pending {
			id = k
		}
		q.t.mu.Unlock()
		if id != 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if id == 0 {
		t.Fatal("querier never registered a pending transaction")
	}

	answer, _ := netaddr.ParseIPv4("192.168.1.77")
	b := answer.Bytes()
	resp := dns.EncodeResponse(id, dns.FlagResponse, nil, []dns.RR{
		{Name: "other-host.local", Type: dns.TypeA, Class: dns.ClassIN, TTL: 120, Data: b[:]},
	})
	remote, _ := netaddr.ParseIPv4("10.0.0.99")
	datagram := udp.Encode(remote, l3.IP(), MulticastPort, MulticastPort, resp)
	udpTable.HandleIPv4(ifindex, remote, l3.IP(), datagram)

	select {
	case ip := <-result:
		if ip != answer {
			t.Fatalf("got %v, want %v", ip, answer)
		}
	case err := <-errCh:
		t.Fatalf("QueryA failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for QueryA result")
	}
}

func TestQuerierQueryATimesOutWithNoResponse(t *testing.T) {
	q, _, _, _ := buildQuerier(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, _, err := q.QueryA(ctx, "nobody.local"); err == nil {
		t.Fatal("expected timeout error")
	}
}
