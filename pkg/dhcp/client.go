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

package dhcp

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/rng"
	"github.com/redactedos/netstack/pkg/udp"
)

// State is a DHCP client FSM state.
type State int

const (
	StateInit State = iota
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
)

func (s State) String() string {
	switch s {
	case StateSelecting:
		return "SELECTING"
	case StateRequesting:
		return "REQUESTING"
	case StateBound:
		return "BOUND"
	case StateRenewing:
		return "RENEWING"
	case StateRebinding:
		return "REBINDING"
	default:
		return "INIT"
	}
}

// Timing constants for the client's backoff and retry behavior.
const (
	InitialBackoffMs = 4000
	MaxBackoffMs     = 64000
	BackoffJitterMs  = 1000
	MinBackoffMs     = 1000

	SelectTimeoutMs = 5000
	RenewTimeoutMs  = 2000

	TickInterval = 100 * time.Millisecond
)

// entry is one L3's DHCP client state.
type entry struct {
	l3    *iface.L3Ipv4Interface
	mac   [6]byte
	state State

	xid uint32

	retryLeftMs uint32 // INIT: time until next DISCOVER
	waitLeftMs  uint32 // SELECTING/REQUESTING/RENEWING: time until timeout
	t1LeftMs    uint32
	t2LeftMs    uint32
	leaseLeftMs uint32
	backoffMs   uint32

	serverIP   netaddr.IPv4
	forceRenew bool
}

// Client runs one DHCP FSM per DHCP-mode L3 interface, sharing a single
// UDP socket bound to port 68 (this stack's socket table is keyed by
// port alone, so one process-wide socket serves every L3; incoming
// replies are demultiplexed by transaction ID instead of by interface).
type Client struct {
	mgr  *iface.Manager
	ipv4 *ipv4.Stack
	udp  *udp.Table
	rng  *rng.Source

	sock *udp.Socket

	// probeConflict, if set, is consulted before an offer is committed:
	// it reports whether ip already answers on ifindex (an ARP probe).
	// Left nil, probing is skipped.
	probeConflict func(ifindex int, ip netaddr.IPv4) bool

	mu      sync.Mutex
	entries map[uint32]*entry // keyed by L3ID
}

// SetConflictProbe wires an ARP-probe callback used to detect another
// host already holding an offered address before it is committed.
func (c *Client) SetConflictProbe(probe func(ifindex int, ip netaddr.IPv4) bool) {
	c.probeConflict = probe
}

// NewClient builds a Client and binds its shared port-68 socket.
//
// Sends bypass the socket's own (necessarily ScopeUnbound, since it
// receives for every L3 on one shared port) bind spec: each send is
// issued directly against ipv4Stack scoped to the entry's own L3, so an
// interface with no address yet (INIT's broadcast DISCOVER) can still
// originate traffic without a route-table entry to find it by.
func NewClient(mgr *iface.Manager, ipv4Stack *ipv4.Stack, udpTable *udp.Table, rngSrc *rng.Source) (*Client, error) {
	sock := udpTable.CreateSocket()
	if err := udpTable.BindUDP(sock, udp.BindSpec{Scope: ipv4.ScopeUnbound}, ClientPort); err != nil {
		return nil, err
	}
	return &Client{
		mgr:     mgr,
		ipv4:    ipv4Stack,
		udp:     udpTable,
		rng:     rngSrc,
		sock:    sock,
		entries: make(map[uint32]*entry),
	}, nil
}

// Run drives the reconcile/step/sleep loop until ctx ends.
func (c *Client) Run(ctx context.Context) {
	go c.recvLoop(ctx)

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-ticker.C:
			c.tick(uint32(TickInterval.Milliseconds()))
		}
	}
}

func (c *Client) recvLoop(ctx context.Context) {
	for {
		d, err := c.udp.RecvFrom(ctx, c.sock)
		if err != nil {
			return
		}
		var pkt Packet
		if err := pkt.Unmarshal(d.Data); err != nil {
			klog.V(4).Infof("dhcp: dropping malformed reply from %s: %v", d.From, err)
			continue
		}
		c.handleReply(&pkt)
	}
}

// tick reconciles the entry set against current interface state, then
// steps every DHCP-mode entry's FSM by deltaMs.
func (c *Client) tick(deltaMs uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconcileLocked()
	for _, e := range c.entries {
		c.stepLocked(e, deltaMs)
	}
}

func (c *Client) reconcileLocked() {
	seen := make(map[uint32]bool)
	for _, l2 := range c.mgr.L2s() {
		for _, l3 := range c.mgr.L3sOf(l2.IfIndex) {
			if l3.Mode != iface.ModeDHCP {
				continue
			}
			seen[l3.L3ID] = true
			if _, ok := c.entries[l3.L3ID]; ok {
				continue
			}
			c.entries[l3.L3ID] = &entry{
				l3:    l3,
				mac:   l2.MAC,
				state: StateInit,
			}
		}
	}
	for id, e := range c.entries {
		if !seen[id] {
			delete(c.entries, id)
			continue
		}
		if e.l3.Mode != iface.ModeDHCP {
			delete(c.entries, id)
		}
	}
}

// nextBackoff doubles b (or starts at InitialBackoffMs), caps at
// MaxBackoffMs, and adds ±BackoffJitterMs uniform jitter floored at
// MinBackoffMs.
func (c *Client) nextBackoff(b uint32) uint32 {
	if b == 0 {
		b = InitialBackoffMs
	} else {
		b *= 2
		if b > MaxBackoffMs {
			b = MaxBackoffMs
		}
	}
	jitter := int32(c.rng.IntnRange(0, 2*BackoffJitterMs+1)) - BackoffJitterMs
	signed := int32(b) + jitter
	if signed < MinBackoffMs {
		signed = MinBackoffMs
	}
	return uint32(signed)
}

func saturatingSub(v, delta uint32) uint32 {
	if delta >= v {
		return 0
	}
	return v - delta
}

func (c *Client) stepLocked(e *entry, deltaMs uint32) {
	switch e.state {
	case StateInit:
		e.retryLeftMs = saturatingSub(e.retryLeftMs, deltaMs)
		if e.retryLeftMs == 0 {
			c.sendDiscover(e)
			e.state = StateSelecting
			e.waitLeftMs = SelectTimeoutMs
		}
	case StateSelecting:
		e.waitLeftMs = saturatingSub(e.waitLeftMs, deltaMs)
		if e.waitLeftMs == 0 {
			c.scheduleRetry(e)
		}
	case StateRequesting:
		e.waitLeftMs = saturatingSub(e.waitLeftMs, deltaMs)
		if e.waitLeftMs == 0 {
			c.scheduleRetry(e)
		}
	case StateBound:
		e.t1LeftMs = saturatingSub(e.t1LeftMs, deltaMs)
		e.t2LeftMs = saturatingSub(e.t2LeftMs, deltaMs)
		e.leaseLeftMs = saturatingSub(e.leaseLeftMs, deltaMs)
		if e.forceRenew || e.t1LeftMs == 0 {
			e.forceRenew = false
			c.sendRenew(e)
			e.state = StateRenewing
			e.waitLeftMs = RenewTimeoutMs
		} else if e.t2LeftMs == 0 {
			c.sendRebind(e)
			e.state = StateRebinding
			e.waitLeftMs = RenewTimeoutMs
		}
	case StateRenewing:
		e.t2LeftMs = saturatingSub(e.t2LeftMs, deltaMs)
		e.waitLeftMs = saturatingSub(e.waitLeftMs, deltaMs)
		if e.t2LeftMs == 0 {
			c.sendRebind(e)
			e.state = StateRebinding
			e.waitLeftMs = RenewTimeoutMs
		} else if e.waitLeftMs == 0 {
			c.sendRebind(e)
			e.state = StateRebinding
			e.waitLeftMs = RenewTimeoutMs
		}
	case StateRebinding:
		e.waitLeftMs = saturatingSub(e.waitLeftMs, deltaMs)
		if e.waitLeftMs == 0 {
			c.scheduleRetry(e)
		}
	}
}

// scheduleRetry clears the bound address (if any) and returns to INIT
// after at least MinBackoffMs.
func (c *Client) scheduleRetry(e *entry) {
	if err := c.mgr.L3Update(e.l3, netaddr.Zero, netaddr.Zero, netaddr.Zero, iface.RuntimeOpts{}, true); err != nil {
		klog.Warningf("dhcp: failed to clear l3 %d on retry: %v", e.l3.L3ID, err)
	}
	e.state = StateInit
	e.t1LeftMs, e.t2LeftMs, e.leaseLeftMs = 0, 0, 0
	e.backoffMs = c.nextBackoff(e.backoffMs)
	e.retryLeftMs = e.backoffMs
}

func (c *Client) newXid(e *entry) uint32 {
	e.xid = c.rng.Uint32()
	return e.xid
}

func (c *Client) sendDiscover(e *entry) {
	xid := c.newXid(e)
	pkt := &Packet{
		Op: OpBootRequest, Htype: HtypeEthernet, Hlen: HlenEthernet,
		Xid: xid, Flags: 0x8000, Chaddr: e.mac,
		Options: map[byte][]byte{
			OptMessageType:          {MsgDiscover},
			OptParameterRequestList: {OptSubnetMask, OptRouter, OptDNS, OptInterfaceMTU, OptNTP, OptLeaseTime},
		},
	}
	c.broadcast(e, pkt)
}

func (c *Client) sendRequestSelecting(e *entry, offer *Packet) {
	pkt := &Packet{
		Op: OpBootRequest, Htype: HtypeEthernet, Hlen: HlenEthernet,
		Xid: e.xid, Flags: 0x8000, Chaddr: e.mac,
		Options: map[byte][]byte{
			OptMessageType:          {MsgRequest},
			OptRequestedIPAddress:   addrBytes(offer.Yiaddr),
			OptServerIdentifier:     offer.GetOption(OptServerIdentifier),
			OptParameterRequestList: {OptSubnetMask, OptRouter, OptDNS, OptInterfaceMTU, OptNTP, OptLeaseTime},
		},
	}
	c.broadcast(e, pkt)
}

func (c *Client) sendRenew(e *entry) {
	ip, _, _, _ := e.l3.Snapshot()
	pkt := &Packet{
		Op: OpBootRequest, Htype: HtypeEthernet, Hlen: HlenEthernet,
		Xid: e.xid, Ciaddr: ip, Chaddr: e.mac,
		Options: map[byte][]byte{OptMessageType: {MsgRequest}},
	}
	c.unicast(e, pkt, e.serverIP)
}

func (c *Client) sendRebind(e *entry) {
	ip, _, _, _ := e.l3.Snapshot()
	pkt := &Packet{
		Op: OpBootRequest, Htype: HtypeEthernet, Hlen: HlenEthernet,
		Xid: e.xid, Flags: 0x8000, Ciaddr: ip, Chaddr: e.mac,
		Options: map[byte][]byte{OptMessageType: {MsgRequest}},
	}
	c.broadcast(e, pkt)
}

// sendDecline issues DHCPDECLINE when a bound address fails its pre-use
// ARP probe.
func (c *Client) sendDecline(e *entry, declinedIP netaddr.IPv4) {
	pkt := &Packet{
		Op: OpBootRequest, Htype: HtypeEthernet, Hlen: HlenEthernet,
		Xid: c.rng.Uint32(), Flags: 0x8000, Chaddr: e.mac,
		Options: map[byte][]byte{
			OptMessageType:        {MsgDecline},
			OptRequestedIPAddress: addrBytes(declinedIP),
			OptServerIdentifier:   addrBytes(e.serverIP),
		},
	}
	c.broadcast(e, pkt)
}

// sendRelease performs a graceful interface teardown: releasing the
// lease on Stop() frees it on the server side.
func (c *Client) sendRelease(e *entry) {
	if e.state != StateBound && e.state != StateRenewing && e.state != StateRebinding {
		return
	}
	ip, _, _, _ := e.l3.Snapshot()
	pkt := &Packet{
		Op: OpBootRequest, Htype: HtypeEthernet, Hlen: HlenEthernet,
		Xid: c.rng.Uint32(), Ciaddr: ip, Chaddr: e.mac,
		Options: map[byte][]byte{
			OptMessageType:      {MsgRelease},
			OptServerIdentifier: addrBytes(e.serverIP),
		},
	}
	c.unicast(e, pkt, e.serverIP)
}

// Stop sends DHCPRELEASE for every L3 that holds a lease. The entries
// themselves are kept. Call before shutting the client down.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		c.sendRelease(e)
	}
}

func (c *Client) shutdown() {
	c.Stop()
}

func addrBytes(a netaddr.IPv4) []byte {
	b := a.Bytes()
	return b[:]
}

func (c *Client) broadcast(e *entry, pkt *Packet) {
	c.sendVia(e, netaddr.Broadcast, pkt)
}

func (c *Client) unicast(e *entry, pkt *Packet, server netaddr.IPv4) {
	c.sendVia(e, server, pkt)
}

// sendVia encodes pkt as a UDP datagram sourced from e.l3's own current
// address (0.0.0.0 before a lease is held) and transmits it scoped to
// e.l3, independent of the route table.
func (c *Client) sendVia(e *entry, dst netaddr.IPv4, pkt *Packet) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	datagram := udp.Encode(e.l3.IP(), dst, ClientPort, ServerPort, pkt.Marshal())
	if err := c.ipv4.Send(ctx, ipv4.ScopeBoundL3, e.l3, dst, ipv4.ProtoUDP, datagram, 0); err != nil {
		klog.V(4).Infof("dhcp: send failed for l3 %d: %v", e.l3.L3ID, err)
	}
}

// handleReply matches an inbound packet against a pending entry by xid
// and chaddr, then drives its FSM.
func (c *Client) handleReply(pkt *Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target *entry
	for _, e := range c.entries {
		if e.xid == pkt.Xid && e.mac == pkt.Chaddr {
			target = e
			break
		}
	}
	if target == nil {
		return
	}

	switch target.state {
	case StateSelecting:
		if pkt.MessageType() != MsgOffer {
			return
		}
		serverID := pkt.GetOption(OptServerIdentifier)
		if len(serverID) != 4 {
			return
		}
		target.serverIP = netaddr.IPv4FromBytes(serverID[0], serverID[1], serverID[2], serverID[3])
		c.sendRequestSelecting(target, pkt)
		target.state = StateRequesting
		target.waitLeftMs = SelectTimeoutMs

	case StateRequesting, StateRenewing, StateRebinding:
		switch pkt.MessageType() {
		case MsgACK:
			c.applyAck(target, pkt)
		case MsgNAK:
			c.scheduleRetry(target)
		}
	}
}

func (c *Client) applyAck(e *entry, pkt *Packet) {
	if c.probeConflict != nil && e.state == StateRequesting && c.probeConflict(e.l3.IfIndex(), pkt.Yiaddr) {
		serverID := pkt.GetOption(OptServerIdentifier)
		if len(serverID) == 4 {
			e.serverIP = netaddr.IPv4FromBytes(serverID[0], serverID[1], serverID[2], serverID[3])
		}
		c.sendDecline(e, pkt.Yiaddr)
		c.scheduleRetry(e)
		return
	}

	mask := netaddr.CIDRMask(24)
	if v := pkt.GetOption(OptSubnetMask); len(v) == 4 {
		mask = netaddr.IPv4FromBytes(v[0], v[1], v[2], v[3])
	}
	var gw netaddr.IPv4
	if v := pkt.GetOption(OptRouter); len(v) >= 4 {
		gw = netaddr.IPv4FromBytes(v[0], v[1], v[2], v[3])
	}

	opts := iface.RuntimeOpts{ServerIP: e.serverIP, Xid: e.xid}
	if v := pkt.GetOption(OptDNS); len(v) >= 4 {
		opts.DNS[0] = netaddr.IPv4FromBytes(v[0], v[1], v[2], v[3])
		if len(v) >= 8 {
			opts.DNS[1] = netaddr.IPv4FromBytes(v[4], v[5], v[6], v[7])
		}
	} else if !gw.IsUnspecified() {
		opts.DNS[0] = gw
	}
	if v := pkt.GetOption(OptNTP); len(v) >= 4 {
		opts.NTP[0] = netaddr.IPv4FromBytes(v[0], v[1], v[2], v[3])
		if len(v) >= 8 {
			opts.NTP[1] = netaddr.IPv4FromBytes(v[4], v[5], v[6], v[7])
		}
	}
	if v := pkt.GetOption(OptInterfaceMTU); len(v) == 2 {
		opts.MTU = int(v[0])<<8 | int(v[1])
	}

	leaseMs := uint32(0)
	if v := pkt.GetOption(OptLeaseTime); len(v) == 4 {
		leaseMs = (uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])) * 1000
	}
	opts.LeaseMs = leaseMs

	t1Ms := leaseMs / 2
	if v := pkt.GetOption(OptRenewalT1); len(v) == 4 {
		t1Ms = (uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])) * 1000
	}
	t2Ms := leaseMs * 7 / 8
	if v := pkt.GetOption(OptRebindingT2); len(v) == 4 {
		t2Ms = (uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])) * 1000
	}
	opts.T1Ms = t1Ms
	opts.T2Ms = t2Ms

	if err := c.mgr.L3Update(e.l3, pkt.Yiaddr, mask, gw, opts, true); err != nil {
		klog.Warningf("dhcp: L3Update failed for l3 %d: %v", e.l3.L3ID, err)
		return
	}

	e.serverIP = opts.ServerIP
	e.t1LeftMs = t1Ms
	e.t2LeftMs = t2Ms
	e.leaseLeftMs = leaseMs
	e.backoffMs = 0
	e.state = StateBound
}

// ForceRenew marks l3's entry (if present and BOUND) for an immediate
// unicast RENEW on the next tick.
func (c *Client) ForceRenew(l3ID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[l3ID]; ok && e.state == StateBound {
		e.forceRenew = true
	}
}

// StateOf reports the current FSM state for l3ID, for diagnostics.
func (c *Client) StateOf(l3ID uint32) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[l3ID]
	if !ok {
		return StateInit, false
	}
	return e.state, true
}
