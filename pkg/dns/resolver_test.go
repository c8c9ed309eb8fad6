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
	"testing"
	"time"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/rng"
	"github.com/redactedos/netstack/pkg/udp"
)

type noopSender struct{}

func (noopSender) SendFrame(ifindex int, dst [6]byte, etherType uint16, payload []byte) error {
	return nil
}

func buildResolver(t *testing.T) (*Resolver, *iface.Manager, *iface.L3Ipv4Interface) {
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
	gw, _ := netaddr.ParseIPv4("10.0.0.1")
	opts := l3.RuntimeOpts()
	dns1, _ := netaddr.ParseIPv4("10.0.0.53")
	opts.DNS[0] = dns1
	if err := mgr.L3Update(l3, ip, mask, gw, opts, false); err != nil {
		t.Fatalf("L3Update: %v", err)
	}

	ipv4Stack := ipv4.NewStack(mgr, noopSender{})
	udpTable := udp.NewTable(ipv4Stack)
	r, err := NewResolver(mgr, udpTable, rng.NewSource())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r, mgr, l3
}

func TestResolveAHitsLocalhostWithoutAnyServer(t *testing.T) {
	r, _, _ := buildResolver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ip, err := r.ResolveA(ctx, "localhost")
	if err != nil {
		t.Fatalf("ResolveA(localhost): %v", err)
	}
	want, _ := netaddr.ParseIPv4("127.0.0.1")
	if ip != want {
		t.Fatalf("got %v, want %v", ip, want)
	}
}

func TestResolveAAAAHitsLocalhostWithoutAnyServer(t *testing.T) {
	r, _, _ := buildResolver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	ip, err := r.ResolveAAAA(ctx, "localhost")
	if err != nil {
		t.Fatalf("ResolveAAAA(localhost): %v", err)
	}
	if ip != (netaddr.IPv6{15: 1}) {
		t.Fatalf("got %v, want ::1", ip)
	}
}

func TestResolveALocalNameWithoutMDNSQuerierFails(t *testing.T) {
	r, _, _ := buildResolver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := r.ResolveA(ctx, "other-host.local"); err == nil {
		t.Fatal("expected resolution to fail with no mDNS querier wired")
	}
}

type fakeMDNS struct {
	a    netaddr.IPv4
	ttl  uint32
	err  error
}

func (f fakeMDNS) QueryA(ctx context.Context, name string) (netaddr.IPv4, uint32, error) {
	return f.a, f.ttl, f.err
}

func (f fakeMDNS) QueryAAAA(ctx context.Context, name string) (netaddr.IPv6, uint32, error) {
	return netaddr.IPv6{}, f.ttl, f.err
}

func TestResolveALocalNameUsesMDNSQuerier(t *testing.T) {
	r, _, _ := buildResolver(t)
	want, _ := netaddr.ParseIPv4("192.168.1.50")
	r.SetMDNSQuerier(fakeMDNS{a: want, ttl: 120})

	ip, err := r.ResolveA(context.Background(), "other-host.local")
	if err != nil {
		t.Fatalf("ResolveA: %v", err)
	}
	if ip != want {
		t.Fatalf("got %v, want %v", ip, want)
	}

	// A second call should be served from cache without touching mDNS.
	r.SetMDNSQuerier(nil)
	ip, err = r.ResolveA(context.Background(), "other-host.local")
	if err != nil || ip != want {
		t.Fatalf("cached ResolveA: got %v, %v", ip, err)
	}
}

func TestPickDNSFindsConfiguredServer(t *testing.T) {
	r, _, l3 := buildResolver(t)
	primary, _, ok := r.pickDNS(l3)
	if !ok {
		t.Fatal("expected a DNS server to be configured")
	}
	want, _ := netaddr.ParseIPv4("10.0.0.53")
	if primary != want {
		t.Fatalf("got %v, want %v", primary, want)
	}
}

func TestResolveANoServerConfigured(t *testing.T) {
	mgr := iface.NewManager()
	drv := netdev.NewMemDriver([6]byte{1, 2, 3, 4, 5, 6}, 1500, netdev.KindEthernet)
	l2, _ := mgr.AddL2("eth0", drv.MAC(), 1500, 0, netdev.KindEthernet, drv)
	if _, err := mgr.AddL3Ipv4(l2.IfIndex, iface.ModeStatic, false); err != nil {
		t.Fatalf("AddL3Ipv4: %v", err)
	}
	ipv4Stack := ipv4.NewStack(mgr, noopSender{})
	udpTable := udp.NewTable(ipv4Stack)
	r, err := NewResolver(mgr, udpTable, rng.NewSource())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	if _, err := r.ResolveA(context.Background(), "example.com"); err == nil {
		t.Fatal("expected failure with no DNS server configured")
	}
}
