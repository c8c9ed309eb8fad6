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

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/eth"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/pbuf"
)

func mustIP(t *testing.T, s string) netaddr.IPv4 {
	t.Helper()
	ip, ok := netaddr.ParseIPv4(s)
	if !ok {
		t.Fatalf("ParseIPv4(%q) failed", s)
	}
	return ip
}

func buildLoop(t *testing.T) (*iface.Manager, *Loop, *netdev.MemDriver, *iface.L3Ipv4Interface) {
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
	if err := mgr.L3Update(l3, mustIP(t, "10.0.0.5"), netaddr.CIDRMask(24), netaddr.Zero, iface.RuntimeOpts{}, false); err != nil {
		t.Fatalf("L3Update: %v", err)
	}
	ipv4Stack := ipv4.NewStack(mgr, nil) // no sender: these tests never transmit through ipv4
	loop := NewLoop(mgr, ipv4Stack)
	return mgr, loop, drv, l3
}

func TestLoopAnswersARPRequestForLocalAddress(t *testing.T) {
	mgr, loop, drv, _ := buildLoop(t)
	l2, _ := mgr.ByIfIndex(1)

	req := arp.Encode(arp.Packet{
		Op:  arp.OpRequest,
		SHA: [6]byte{9, 9, 9, 9, 9, 9},
		SPA: mustIP(t, "10.0.0.9"),
		TPA: mustIP(t, "10.0.0.5"),
	})
	frame := make([]byte, eth.HeaderLen+len(req))
	eth.Header{Dst: l2.MAC, Src: [6]byte{9, 9, 9, 9, 9, 9}, EtherType: eth.TypeARP}.Encode(frame)
	copy(frame[eth.HeaderLen:], req)

	buf := pbuf.Wrap(frame, nil, nil)
	if err := loop.InjectRX(1, buf); err != nil {
		t.Fatalf("InjectRX: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go loop.Run(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(drv.Sent()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected dispatch loop to transmit an ARP reply via the driver")
}

func TestLoopDemuxesIPv4ToRegisteredHandler(t *testing.T) {
	mgr, loop, _, _ := buildLoop(t)
	l2, _ := mgr.ByIfIndex(1)

	received := make(chan []byte, 1)
	loop.ipv4.RegisterHandler(ipv4.ProtoUDP, handlerFunc(func(ifindex int, src, dst netaddr.IPv4, payload []byte) {
		received <- payload
	}))

	h := ipv4.Header{TTL: 64, Protocol: ipv4.ProtoUDP, Src: mustIP(t, "10.0.0.9"), Dst: mustIP(t, "10.0.0.5")}
	ipPacket := append(ipv4.EncodeHeader(h, 5), []byte("hello")...)
	frame := make([]byte, eth.HeaderLen+len(ipPacket))
	eth.Header{Dst: l2.MAC, Src: [6]byte{9, 9, 9, 9, 9, 9}, EtherType: eth.TypeIPv4}.Encode(frame)
	copy(frame[eth.HeaderLen:], ipPacket)

	buf := pbuf.Wrap(frame, nil, nil)
	if err := loop.InjectRX(1, buf); err != nil {
		t.Fatalf("InjectRX: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go loop.Run(ctx)

	select {
	case payload := <-received:
		if string(payload) != "hello" {
			t.Fatalf("payload = %q, want hello", payload)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("handler was never invoked")
	}
}

type handlerFunc func(ifindex int, src, dst netaddr.IPv4, payload []byte)

func (f handlerFunc) HandleIPv4(ifindex int, src, dst netaddr.IPv4, payload []byte) {
	f(ifindex, src, dst, payload)
}
