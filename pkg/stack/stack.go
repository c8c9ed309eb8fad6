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

// Package stack is the root composition object: it owns one of every
// per-layer component (pkg/iface, pkg/dispatch, pkg/ipv4, pkg/icmp,
// pkg/udp, pkg/arp, pkg/dhcp, pkg/dns, pkg/mdns, pkg/ntp) and exposes
// the application-facing socket/ping/resolve API on top of them. One
// call wires every subsystem together and hands back an object whose
// Spawn starts every background daemon and whose Stop tears them down.
package stack

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/dhcp"
	"github.com/redactedos/netstack/pkg/dispatch"
	"github.com/redactedos/netstack/pkg/dns"
	"github.com/redactedos/netstack/pkg/icmp"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/mdns"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/ntp"
	"github.com/redactedos/netstack/pkg/rng"
	"github.com/redactedos/netstack/pkg/udp"
)

type mdnsPair struct {
	responder *mdns.Responder
	querier   *mdns.Querier
}

// Stack is one complete netstack instance: the interface table plus
// every protocol layer built on top of it. Construct with New, attach
// NICs with AddInterface, then call Spawn to start the background
// daemons (dispatch loop, ARP aging, DHCP, NTP, mDNS).
type Stack struct {
	cfg Config

	Manager *iface.Manager
	Loop    *dispatch.Loop
	IPv4    *ipv4.Stack
	ICMP    *icmp.Stack
	UDP     *udp.Table
	DNS     *dns.Resolver

	arpDaemon *arp.Daemon
	rngSrc    *rng.Source
	clock     *ntp.VirtualClock
	ntp       *ntp.Client

	mu       sync.Mutex
	dhcpByL2 map[int]*dhcp.Client
	mdnsByL3 map[uint32]mdnsPair
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds an empty Stack: an interface manager, a dispatch loop, and
// the IPv4/ICMP/UDP/DNS layers on top of it. No NICs are attached yet;
// call AddInterface for each one, then Spawn to start the daemons.
func New(cfg Config) (*Stack, error) {
	cfg = cfg.withDefaults()

	mgr := iface.NewManager()
	// ipv4.Stack needs a sender at construction, but the sender this
	// process actually uses (dispatch.Loop) needs the ipv4.Stack to
	// demux into. Build ipv4.Stack with a nil sender, build the Loop
	// against it, then patch the sender in.
	ipv4St := ipv4.NewStack(mgr, nil)
	loop := dispatch.NewLoop(mgr, ipv4St)
	ipv4St.SetSender(loop)

	icmpSt := icmp.NewStack(ipv4St)
	udpTable := udp.NewTable(ipv4St)
	rngSrc := rng.NewSource()

	resolver, err := dns.NewResolver(mgr, udpTable, rngSrc)
	if err != nil {
		return nil, err
	}

	clock := ntp.NewVirtualClock()
	ntpClient, err := ntp.NewClient(mgr, udpTable, clock)
	if err != nil {
		return nil, err
	}

	s := &Stack{
		cfg:      cfg,
		Manager:  mgr,
		Loop:     loop,
		IPv4:     ipv4St,
		ICMP:     icmpSt,
		UDP:      udpTable,
		DNS:      resolver,
		rngSrc:   rngSrc,
		clock:    clock,
		ntp:      ntpClient,
		dhcpByL2: make(map[int]*dhcp.Client),
		mdnsByL3: make(map[uint32]mdnsPair),
		ctx:      context.Background(),
	}
	s.arpDaemon = arp.NewDaemon(s.arpTables)
	return s, nil
}

// arpTables collects every registered interface's ARP table, the
// callback arp.Daemon polls on its aging tick.
func (s *Stack) arpTables() []*arp.Table {
	l2s := s.Manager.L2s()
	tables := make([]*arp.Table, 0, len(l2s))
	for _, l2 := range l2s {
		tables = append(tables, l2.ARP)
	}
	return tables
}

// AddInterface registers a NIC and returns its L2Interface, built from an
// explicit netdev.Driver rather than an OS-discovered link.
func (s *Stack) AddInterface(name string, mac [6]byte, mtu int, kind netdev.Kind, drv netdev.Driver) (*iface.L2Interface, error) {
	const ethernetHeaderLen = 14
	return s.Manager.AddL2(name, mac, mtu, ethernetHeaderLen, kind, drv)
}

// ConfigureStatic binds a static IPv4 address to l2, the equivalent of
// an operator's "ip addr add" for an interface that isn't DHCP-managed.
func (s *Stack) ConfigureStatic(l2 *iface.L2Interface, ip, mask, gw netaddr.IPv4, opts iface.RuntimeOpts) (*iface.L3Ipv4Interface, error) {
	l3, err := s.Manager.AddL3Ipv4(l2.IfIndex, iface.ModeStatic, false)
	if err != nil {
		return nil, err
	}
	if err := s.Manager.L3Update(l3, ip, mask, gw, opts, false); err != nil {
		return nil, err
	}
	s.maybeStartMDNS(l2, l3)
	return l3, nil
}

// ConfigureDHCP creates a DHCP-managed IPv4 sub-interface on l2 and
// registers its DHCP client; the client's goroutine starts when Spawn
// runs (or immediately if the Stack is already running).
func (s *Stack) ConfigureDHCP(l2 *iface.L2Interface) (*iface.L3Ipv4Interface, error) {
	l3, err := s.Manager.AddL3Ipv4(l2.IfIndex, iface.ModeDHCP, false)
	if err != nil {
		return nil, err
	}
	client, err := dhcp.NewClient(s.Manager, s.IPv4, s.UDP, s.rngSrc)
	if err != nil {
		return nil, err
	}
	client.SetConflictProbe(s.arpConflictProbe)

	s.mu.Lock()
	s.dhcpByL2[l2.IfIndex] = client
	running := s.cancel != nil
	ctx := s.ctx
	s.mu.Unlock()

	if running {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			client.Run(ctx)
		}()
	}
	return l3, nil
}

// arpConflictProbe ARP-resolves ip on ifindex with a short timeout and
// reports whether another host already answers for it, the pre-use
// probe dhcp.Client consults before committing an offer.
func (s *Stack) arpConflictProbe(ifindex int, ip netaddr.IPv4) bool {
	l2, ok := s.Manager.ByIfIndex(ifindex)
	if !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := arp.Resolve(ctx, l2.ARP, ifindex, l2.MAC, s.Manager, s.Loop, ip, 300*time.Millisecond)
	return err == nil
}

// maybeStartMDNS starts a Responder/Querier pair for l3 once it has a
// bound address, wired into DNS as the ".local" fallback. Errors are
// logged, not returned: mDNS is a convenience layer, and a missing
// multicast transport shouldn't block interface configuration.
func (s *Stack) maybeStartMDNS(l2 *iface.L2Interface, l3 *iface.L3Ipv4Interface) {
	if !s.cfg.EnableMDNS || l3.IP().IsUnspecified() {
		return
	}
	s.mu.Lock()
	running := s.cancel != nil
	ctx := s.ctx
	s.mu.Unlock()
	if !running {
		return
	}

	responder, querier, err := mdns.New(ctx, s.Loop, s.UDP, l3, l2.MAC, s.rngSrc)
	if err != nil {
		klog.Warningf("stack: mdns.New on %s: %v", l2.Name, err)
		return
	}

	s.mu.Lock()
	s.mdnsByL3[l3.L3ID] = mdnsPair{responder: responder, querier: querier}
	s.mu.Unlock()
	s.DNS.SetMDNSQuerier(querier)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		responder.Run(ctx)
	}()
}

// Spawn starts every background daemon (dispatch loop, ARP aging, every
// registered DHCP client, the NTP poller, and mDNS on any
// already-configured interface) and returns immediately; the daemons
// run until ctx is done or Stop is called. Spawn must be called exactly
// once per Stack.
func (s *Stack) Spawn(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	dhcpClients := make([]*dhcp.Client, 0, len(s.dhcpByL2))
	for _, c := range s.dhcpByL2 {
		dhcpClients = append(dhcpClients, c)
	}
	s.mu.Unlock()

	s.wg.Add(3)
	go func() { defer s.wg.Done(); s.Loop.Run(ctx) }()
	go func() { defer s.wg.Done(); s.arpDaemon.Run(ctx) }()
	go func() { defer s.wg.Done(); s.ntp.Run(ctx) }()

	for _, c := range dhcpClients {
		s.wg.Add(1)
		go func(c *dhcp.Client) {
			defer s.wg.Done()
			c.Run(ctx)
		}(c)
	}

	if s.cfg.EnableMDNS {
		for _, l2 := range s.Manager.L2s() {
			for _, l3 := range s.Manager.L3sOf(l2.IfIndex) {
				s.maybeStartMDNS(l2, l3)
			}
		}
	}
}

// Stop cancels every daemon Spawn started and blocks until they exit.
// Each DHCP client releases its leases as part of its own shutdown path
// when ctx is cancelled (dhcp.Client.Run's ctx.Done branch).
func (s *Stack) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
