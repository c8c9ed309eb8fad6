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

package iface

import (
	"testing"

	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
)

func mustIP(t *testing.T, s string) netaddr.IPv4 {
	t.Helper()
	ip, ok := netaddr.ParseIPv4(s)
	if !ok {
		t.Fatalf("ParseIPv4(%q) failed", s)
	}
	return ip
}

func TestAddL2RespectsCapacity(t *testing.T) {
	m := NewManager()
	for i := 0; i < MaxL2Interfaces; i++ {
		drv := netdev.NewMemDriver([6]byte{byte(i)}, 1500, netdev.KindEthernet)
		if _, err := m.AddL2("ethX", [6]byte{byte(i)}, 1500, 0, netdev.KindEthernet, drv); err != nil {
			t.Fatalf("AddL2 #%d: %v", i, err)
		}
	}
	drv := netdev.NewMemDriver([6]byte{0xff}, 1500, netdev.KindEthernet)
	if _, err := m.AddL2("ethY", [6]byte{0xff}, 1500, 0, netdev.KindEthernet, drv); err == nil {
		t.Fatal("expected capacity error on 9th interface")
	}
}

func TestAddL3Ipv4RespectsPerInterfaceCapacity(t *testing.T) {
	m := NewManager()
	drv := netdev.NewMemDriver([6]byte{1}, 1500, netdev.KindEthernet)
	l2, err := m.AddL2("eth0", [6]byte{1}, 1500, 0, netdev.KindEthernet, drv)
	if err != nil {
		t.Fatalf("AddL2: %v", err)
	}
	for i := 0; i < MaxIPv4PerInterface; i++ {
		if _, err := m.AddL3Ipv4(l2.IfIndex, ModeStatic, false); err != nil {
			t.Fatalf("AddL3Ipv4 #%d: %v", i, err)
		}
	}
	if _, err := m.AddL3Ipv4(l2.IfIndex, ModeStatic, false); err == nil {
		t.Fatal("expected capacity error on 5th sub-interface")
	}
}

func TestL3UpdateRejectsStaticWriteToDHCPBinding(t *testing.T) {
	m := NewManager()
	drv := netdev.NewMemDriver([6]byte{1}, 1500, netdev.KindEthernet)
	l2, _ := m.AddL2("eth0", [6]byte{1}, 1500, 0, netdev.KindEthernet, drv)
	l3, _ := m.AddL3Ipv4(l2.IfIndex, ModeDHCP, false)

	ip := mustIP(t, "10.0.0.5")
	mask := netaddr.CIDRMask(24)
	if err := m.L3Update(l3, ip, mask, netaddr.Zero, RuntimeOpts{}, false); err == nil {
		t.Fatal("expected non-DHCP caller to be rejected")
	}
	if err := m.L3Update(l3, ip, mask, netaddr.Zero, RuntimeOpts{}, true); err != nil {
		t.Fatalf("DHCP-origin update rejected: %v", err)
	}
	if got := l3.IP(); got != ip {
		t.Fatalf("IP() = %s, want %s", got, ip)
	}
}

func TestL3UpdatePopulatesDirectAndDefaultRoutes(t *testing.T) {
	m := NewManager()
	drv := netdev.NewMemDriver([6]byte{1}, 1500, netdev.KindEthernet)
	l2, _ := m.AddL2("eth0", [6]byte{1}, 1500, 0, netdev.KindEthernet, drv)
	l3, _ := m.AddL3Ipv4(l2.IfIndex, ModeStatic, false)

	ip := mustIP(t, "192.168.1.10")
	mask := netaddr.CIDRMask(24)
	gw := mustIP(t, "192.168.1.1")
	if err := m.L3Update(l3, ip, mask, gw, RuntimeOpts{}, false); err != nil {
		t.Fatalf("L3Update: %v", err)
	}

	if rgw, rif, ok := m.Routes.Lookup(mustIP(t, "192.168.1.200")); !ok || !rgw.IsUnspecified() || rif != l2.IfIndex {
		t.Fatalf("direct route lookup = gw=%s ifindex=%d ok=%v, want unspecified gw on-link", rgw, rif, ok)
	}
	if rgw, rif, ok := m.Routes.Lookup(mustIP(t, "8.8.8.8")); !ok || rgw != gw || rif != l2.IfIndex {
		t.Fatalf("default route lookup = gw=%s ifindex=%d ok=%v, want gw=%s", rgw, rif, ok, gw)
	}
}

func TestLocalIPv4sSkipsDisabledSubInterfaces(t *testing.T) {
	m := NewManager()
	drv := netdev.NewMemDriver([6]byte{1}, 1500, netdev.KindEthernet)
	l2, _ := m.AddL2("eth0", [6]byte{1}, 1500, 0, netdev.KindEthernet, drv)
	l3a, _ := m.AddL3Ipv4(l2.IfIndex, ModeStatic, false)
	_, _ = m.AddL3Ipv4(l2.IfIndex, ModeDisabled, false)

	ip := mustIP(t, "10.0.0.2")
	mask := netaddr.CIDRMask(24)
	if err := m.L3Update(l3a, ip, mask, netaddr.Zero, RuntimeOpts{}, false); err != nil {
		t.Fatalf("L3Update: %v", err)
	}

	locals := m.LocalIPv4s(l2.IfIndex)
	if len(locals) != 1 || locals[0].IP != ip {
		t.Fatalf("LocalIPv4s = %+v, want exactly [%s]", locals, ip)
	}
}
