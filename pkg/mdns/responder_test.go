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
	"testing"

	"github.com/redactedos/netstack/pkg/dns"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/udp"
)

func buildResponder(t *testing.T) (*Responder, *capturingSender, [6]byte) {
	t.Helper()
	mgr := iface.NewManager()
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	drv := netdev.NewMemDriver(mac, 1500, netdev.KindEthernet)
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
	return newResponder(tr, mac, l3.IP()), sender, mac
}

func TestResponderAnnounceEncodesHostRecord(t *testing.T) {
	r, sender, mac := buildResponder(t)
	r.sendAllRecords(recordTTL)

	frame := sender.last()
	if frame == nil {
		t.Fatal("expected a captured frame")
	}
	_, udpPayload, err := ipv4.DecodeHeader(frame)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	src, _ := netaddr.ParseIPv4("10.0.0.5")
	_, dnsPayload, err := udp.Decode(src, MulticastGroup, udpPayload)
	if err != nil {
		t.Fatalf("udp.Decode: %v", err)
	}
	msg, err := dns.Decode(dnsPayload)
	if err != nil {
		t.Fatalf("dns.Decode: %v", err)
	}
	if len(msg.Answers) != 1 {
		t.Fatalf("expected one answer, got %d", len(msg.Answers))
	}
	want := Hostname(mac)
	if msg.Answers[0].Name != want {
		t.Fatalf("got name %q, want %q", msg.Answers[0].Name, want)
	}
	if msg.Answers[0].Class&dns.ClassCacheFlushBit == 0 {
		t.Fatalf("expected cache-flush bit set on authoritative A record")
	}
}

func TestResponderHandlesQueryForOwnHostname(t *testing.T) {
	r, sender, mac := buildResponder(t)
	before := sender.count()

	query := dns.Message{
		ID:        0x9999,
		Questions: []dns.Question{{Name: Hostname(mac), Type: dns.TypeA, Class: dns.ClassIN}},
	}
	r.handleQuery(netaddr.Endpoint{}, query)

	if sender.count() != before+1 {
		t.Fatalf("expected exactly one reply frame, got %d new frames", sender.count()-before)
	}
}

func TestResponderIgnoresUnrelatedQuery(t *testing.T) {
	r, sender, _ := buildResponder(t)
	before := sender.count()

	query := dns.Message{
		ID:        0x1,
		Questions: []dns.Question{{Name: "someone-else.local", Type: dns.TypeA, Class: dns.ClassIN}},
	}
	r.handleQuery(netaddr.Endpoint{}, query)

	if sender.count() != before {
		t.Fatalf("expected no reply for unrelated query, got %d new frames", sender.count()-before)
	}
}

func TestResponderServiceRegistrationAnnouncesRecords(t *testing.T) {
	r, _, _ := buildResponder(t)
	svc := Service{Instance: "printer", Type: "_ipp._tcp", Port: 631, TXT: []string{"txtvers=1"}}

	rrs := r.serviceRecords(svc, recordTTL)
	if len(rrs) != 3 {
		t.Fatalf("expected PTR/SRV/TXT, got %d records", len(rrs))
	}
	if rrs[0].Type != dns.TypePTR || rrs[1].Type != dns.TypeSRV || rrs[2].Type != dns.TypeTXT {
		t.Fatalf("unexpected record types: %+v", rrs)
	}
	if rrs[0].Name != svc.serviceName() || rrs[1].Name != svc.instanceName() {
		t.Fatalf("unexpected record names: %+v", rrs)
	}
}
