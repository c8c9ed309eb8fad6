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
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/eth"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/netdev"
	"github.com/redactedos/netstack/pkg/neterr"
)

// ArpTimeout bounds how long Send waits for address resolution before
// giving up.
const ArpTimeout = 2 * time.Second

// Scope selects how Send picks its source address and egress interface.
type Scope int

const (
	// ScopeUnbound lets the route table choose the egress interface and
	// a locally configured address on it supplies the source.
	ScopeUnbound Scope = iota
	// ScopeBoundL3 pins the send to one already-configured L3 interface.
	ScopeBoundL3
)

// Handler receives a reassembled, protocol-demultiplexed datagram.
type Handler interface {
	HandleIPv4(ifindex int, src, dst netaddr.IPv4, payload []byte)
}

// Stack is the IPv4 send/receive engine: one per netstack instance,
// shared by every interface it manages.
type Stack struct {
	mgr    *iface.Manager
	sender arp.FrameSender
	reasm  *Reassembler

	mu       sync.RWMutex
	handlers map[byte]Handler
}

// NewStack builds a Stack bound to mgr (for routes, addresses, ARP
// tables) and sender (how dispatch actually puts frames on the wire).
func NewStack(mgr *iface.Manager, sender arp.FrameSender) *Stack {
	return &Stack{
		mgr:      mgr,
		sender:   sender,
		reasm:    NewReassembler(),
		handlers: make(map[byte]Handler),
	}
}

// SetSender rebinds the outbound frame sender. pkg/stack uses this to
// break the construction cycle between Stack and dispatch.Loop: Loop
// needs an already-built *Stack to demux received frames into, while
// Stack needs a sender to transmit through, so composition code builds
// Stack with a nil sender, then the Loop, then calls SetSender(loop).
func (s *Stack) SetSender(sender arp.FrameSender) {
	s.sender = sender
}

// RegisterHandler wires a protocol number (ProtoICMP, ProtoUDP, ...) to
// its receiver. Registering twice for the same protocol replaces it.
func (s *Stack) RegisterHandler(proto byte, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[proto] = h
}

func (s *Stack) handlerFor(proto byte) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[proto]
	return h, ok
}

// pickSource returns a locally configured address on ifindex, favoring
// one whose subnet contains dst.
func pickSource(mgr *iface.Manager, ifindex int, dst netaddr.IPv4) (netaddr.IPv4, bool) {
	locals := mgr.LocalIPv4s(ifindex)
	for _, l := range locals {
		if netaddr.SameSubnet(l.IP, dst, l.Mask) {
			return l.IP, true
		}
	}
	if len(locals) > 0 {
		return locals[0].IP, true
	}
	return netaddr.Zero, false
}

// Send builds, checksums, ARP-resolves the next hop, and transmits a
// single (unfragmented) IPv4 datagram. l3 is only consulted when scope
// is ScopeBoundL3.
func (s *Stack) Send(ctx context.Context, scope Scope, l3 *iface.L3Ipv4Interface, dst netaddr.IPv4, proto byte, payload []byte, ttl byte) error {
	ifindex, srcIP, nextHop, err := s.Route(scope, l3, dst)
	if err != nil {
		return err
	}

	l2, ok := s.mgr.ByIfIndex(ifindex)
	if !ok {
		return neterr.NotFound
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	header := EncodeHeader(Header{TTL: ttl, Protocol: proto, Src: srcIP, Dst: dst}, len(payload))
	frame := append(header, payload...)

	var dstMAC [6]byte
	directed := false
	for _, la := range s.mgr.LocalIPv4s(ifindex) {
		if nextHop != la.IP && nextHop == la.IP.DirectedBroadcast(la.Mask) {
			directed = true
		}
	}
	if nextHop.IsBroadcast() || directed || l2.Kind == netdev.KindLoopback {
		dstMAC = eth.Broadcast
	} else {
		mac, err := arp.Resolve(ctx, l2.ARP, ifindex, l2.MAC, s.mgr, s.sender, nextHop, ArpTimeout)
		if err != nil {
			return err
		}
		dstMAC = mac
	}
	return s.sender.SendFrame(ifindex, dstMAC, eth.TypeIPv4, frame)
}

// Route resolves the egress interface, source address, and next hop
// Send would use, without transmitting anything. Upper layers that must
// checksum a pseudo-header before handing payload to Send (UDP) call
// this first to learn the source address Send will pick.
func (s *Stack) Route(scope Scope, l3 *iface.L3Ipv4Interface, dst netaddr.IPv4) (ifindex int, srcIP, nextHop netaddr.IPv4, err error) {
	switch scope {
	case ScopeBoundL3:
		ifindex = l3.IfIndex()
		srcIP = l3.IP()
		mask := l3.Mask()
		if netaddr.SameSubnet(srcIP, dst, mask) || dst.IsBroadcast() {
			nextHop = dst
		} else if gw := l3.Gateway(); !gw.IsUnspecified() {
			nextHop = gw
		} else {
			return 0, netaddr.Zero, netaddr.Zero, neterr.NotFound
		}
		return ifindex, srcIP, nextHop, nil
	case ScopeUnbound:
		gw, outIfindex, ok := s.mgr.Routes.Lookup(dst)
		if !ok {
			return 0, netaddr.Zero, netaddr.Zero, neterr.NotFound
		}
		ifindex = outIfindex
		if gw.IsUnspecified() {
			nextHop = dst
		} else {
			nextHop = gw
		}
		src, ok := pickSource(s.mgr, ifindex, dst)
		if !ok {
			return 0, netaddr.Zero, netaddr.Zero, neterr.NotFound
		}
		return ifindex, src, nextHop, nil
	default:
		return 0, netaddr.Zero, netaddr.Zero, neterr.InvalidArgument
	}
}

// Input is eth_input's IPv4 branch: validate, reassemble if fragmented,
// and dispatch by protocol. WireFormat errors are logged and absorbed
// here, never propagated to the caller.
func (s *Stack) Input(ifindex int, frame []byte) {
	h, payload, err := DecodeHeader(frame)
	if err != nil {
		klog.V(4).Infof("ipv4: dropping malformed datagram on ifindex %d: %v", ifindex, err)
		return
	}
	if h.MF || h.FragOffset != 0 {
		full, ready := s.reasm.Add(h, payload)
		if !ready {
			return
		}
		payload = full
	}
	handler, ok := s.handlerFor(h.Protocol)
	if !ok {
		return
	}
	handler.HandleIPv4(ifindex, h.Src, h.Dst, payload)
}
