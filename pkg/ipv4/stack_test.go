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

package ipv4

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []sentFrame
	mgr   *iface.Manager
}

type sentFrame struct {
	ifindex   int
	dst       [6]byte
	etherType uint16
	payload   []byte
}

func (s *recordingSender) SendFrame(ifindex int, dst [6]byte, etherType uint16, payload []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentFrame{ifindex, dst, etherType, payload})
	s.mu.Unlock()
	return nil
}

func setup(t *testing.T) (*iface.Manager, *Stack, *recordingSender, *iface.L3Ipv4Interface) {
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
	ip := mustIP(t, "10.0.0.5")
	mask := netaddr.CIDRMask(24)
	if err := mgr.L3Update(l3, ip, mask, netaddr.Zero, iface.RuntimeOpts{}, false); err != nil {
		t.Fatalf("L3Update: %v", err)
	}
	sender := &recordingSender{mgr: mgr}
	return mgr, NewStack(mgr, sender), sender, l3
}

func TestSendBoundL3BroadcastSkipsArp(t *testing.T) {
	_, stack, sender, l3 := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := stack.Send(ctx, ScopeBoundL3, l3, netaddr.Broadcast, ProtoUDP, []byte("hi"), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sender.sent))
	}
	if sender.sent[0].dst != [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff} {
		t.Fatalf("dst mac = %x, want broadcast", sender.sent[0].dst)
	}
}

func TestSendUnboundRespectsRouteTable(t *testing.T) {
	mgr, stack, sender, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := stack.Send(ctx, ScopeUnbound, nil, mustIP(t, "10.0.0.255"), ProtoUDP, []byte("x"), 0); err != nil {
		t.Fatalf("Send on-link: %v", err)
	}
	if _, _, ok := mgr.Routes.Lookup(mustIP(t, "8.8.8.8")); ok {
		t.Fatal("unexpected default route before one is configured")
	}
}

func TestInputDispatchesToRegisteredHandler(t *testing.T) {
	_, stack, _, _ := setup(t)
	var got []byte
	var gotSrc, gotDst netaddr.IPv4
	stack.RegisterHandler(ProtoUDP, handlerFunc(func(ifindex int, src, dst netaddr.IPv4, payload []byte) {
		got = payload
		gotSrc, gotDst = src, dst
	}))

	h := Header{TTL: 64, Protocol: ProtoUDP, Src: mustIP(t, "10.0.0.9"), Dst: mustIP(t, "10.0.0.5")}
	frame := append(EncodeHeader(h, 5), []byte("hello")...)
	stack.Input(1, frame)

	if string(got) != "hello" || gotSrc != h.Src || gotDst != h.Dst {
		t.Fatalf("handler got payload=%q src=%s dst=%s", got, gotSrc, gotDst)
	}
}

func TestInputDropsMalformedWithoutPanicking(t *testing.T) {
	_, stack, _, _ := setup(t)
	stack.Input(1, []byte{0x01, 0x02}) // too short to be a header
}

type handlerFunc func(ifindex int, src, dst netaddr.IPv4, payload []byte)

func (f handlerFunc) HandleIPv4(ifindex int, src, dst netaddr.IPv4, payload []byte) {
	f(ifindex, src, dst, payload)
}
