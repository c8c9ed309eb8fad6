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

package icmp

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/wire"
)

func mustIP(t *testing.T, s string) netaddr.IPv4 {
	t.Helper()
	ip, ok := netaddr.ParseIPv4(s)
	if !ok {
		t.Fatalf("ParseIPv4(%q) failed", s)
	}
	return ip
}

func TestEncodeDecodeEchoRoundTrip(t *testing.T) {
	payload := make([]byte, 32)
	b := EncodeEcho(TypeEchoRequest, 0x1234, 1, payload)
	typ, _, id, seq, body, err := DecodeEcho(b)
	if err != nil {
		t.Fatalf("DecodeEcho: %v", err)
	}
	if typ != TypeEchoRequest || id != 0x1234 || seq != 1 || len(body) != 32 {
		t.Fatalf("decoded = type=%d id=%x seq=%d len=%d", typ, id, seq, len(body))
	}
}

func TestEncodeEchoTruncatesOversizedPayload(t *testing.T) {
	b := EncodeEcho(TypeEchoRequest, 1, 1, make([]byte, 200))
	if len(b) != HeaderLen+MaxEchoPayload {
		t.Fatalf("length = %d, want %d", len(b), HeaderLen+MaxEchoPayload)
	}
}

func buildStack(t *testing.T) *ipv4.Stack {
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
	return ipv4.NewStack(mgr, noopSender{})
}

type noopSender struct{}

func (noopSender) SendFrame(ifindex int, dst [6]byte, etherType uint16, payload []byte) error { return nil }

func TestPingRespondsOKOnMatchingReply(t *testing.T) {
	stack := buildStack(t)
	icmpStack := NewStack(stack)

	// A hand-built echo reply delivered directly to HandleIPv4 stands
	// in for "peer replies 500ms later" without needing a live NIC.
	go func() {
		time.Sleep(20 * time.Millisecond)
		reply := EncodeEcho(TypeEchoReply, 0x1234, 1, make([]byte, 32))
		icmpStack.HandleIPv4(1, mustIP(t, "8.8.8.8"), mustIP(t, "10.0.0.5"), reply)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, rtt, err := icmpStack.Ping(ctx, mustIP(t, "8.8.8.8"), 0x1234, 1, time.Second, PingOpts{}, make([]byte, 32))
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}
	if rtt < 15*time.Millisecond {
		t.Fatalf("rtt = %v, suspiciously small", rtt)
	}
}

func TestPingTimesOutWithoutReply(t *testing.T) {
	stack := buildStack(t)
	icmpStack := NewStack(stack)
	ctx := context.Background()
	status, _, err := icmpStack.Ping(ctx, mustIP(t, "8.8.8.8"), 7, 1, 50*time.Millisecond, PingOpts{}, nil)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if status != StatusTimeout {
		t.Fatalf("status = %v, want TIMEOUT", status)
	}
}

func TestDestUnreachMarksPendingSlot(t *testing.T) {
	stack := buildStack(t)
	icmpStack := NewStack(stack)

	go func() {
		time.Sleep(10 * time.Millisecond)
		// embedded IPv4 header (20 bytes, arbitrary but well-formed
		// enough for our lenient parser) + first 8 bytes of the
		// offending echo request (id=0x55, seq=2).
		embeddedIP := make([]byte, 20)
		embeddedIP[0] = 0x45
		embeddedICMP := EncodeEcho(TypeEchoRequest, 0x55, 2, nil)[:8]
		body := append(embeddedIP, embeddedICMP...)
		destUnreach := make([]byte, HeaderLen+len(body))
		destUnreach[0] = TypeDestUnreach
		destUnreach[1] = CodePortUnreach
		copy(destUnreach[8:], body)
		binary.BigEndian.PutUint16(destUnreach[2:4], wire.Checksum(destUnreach))
		icmpStack.HandleIPv4(1, mustIP(t, "10.0.0.9"), mustIP(t, "10.0.0.5"), destUnreach)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, _, err := icmpStack.Ping(ctx, mustIP(t, "10.0.0.9"), 0x55, 2, time.Second, PingOpts{}, nil)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if status != StatusPortUnreach {
		t.Fatalf("status = %v, want PORT_UNREACH", status)
	}
}
