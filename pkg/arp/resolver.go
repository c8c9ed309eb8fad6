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

package arp

import (
	"context"
	"time"

	"github.com/redactedos/netstack/pkg/eth"
	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
)

// PollInterval is how often Resolve re-checks the table while a request
// is outstanding.
const PollInterval = 100 * time.Millisecond

// LocalAddr is one IPv4 address configured on an interface, as seen by
// the resolver. It carries the subnet mask so the resolver can pick the
// sender address whose subnet contains the target.
type LocalAddr struct {
	IP   netaddr.IPv4
	Mask netaddr.IPv4
}

// AddrSource exposes the local IPv4 addresses of an interface without
// requiring this package to import pkg/iface.
type AddrSource interface {
	LocalIPv4s(ifindex int) []LocalAddr
}

// FrameSender transmits an already-built Ethernet payload on an
// interface. pkg/dispatch satisfies this for the live dispatch loop;
// tests supply a recording fake.
type FrameSender interface {
	SendFrame(ifindex int, dstMAC [6]byte, etherType uint16, payload []byte) error
}

// pickSPA chooses the sender protocol address: the configured IP whose
// subnet contains target, or the first configured IP as a fallback.
func pickSPA(addrs AddrSource, ifindex int, target netaddr.IPv4) netaddr.IPv4 {
	locals := addrs.LocalIPv4s(ifindex)
	for _, l := range locals {
		if netaddr.SameSubnet(l.IP, target, l.Mask) {
			return l.IP
		}
	}
	if len(locals) > 0 {
		return locals[0].IP
	}
	return netaddr.Zero
}

// hasLocal reports whether ip is configured on ifindex.
func hasLocal(addrs AddrSource, ifindex int, ip netaddr.IPv4) bool {
	for _, l := range addrs.LocalIPv4s(ifindex) {
		if l.IP == ip {
			return true
		}
	}
	return false
}

// SendRequest broadcasts an ARP request for target.
func SendRequest(sender FrameSender, ifindex int, localMAC [6]byte, spa, target netaddr.IPv4) error {
	pkt := Packet{Op: OpRequest, SHA: localMAC, SPA: spa, THA: [6]byte{}, TPA: target}
	return sender.SendFrame(ifindex, eth.Broadcast, eth.TypeARP, Encode(pkt))
}

// Resolve returns the MAC bound to target on ifindex, blocking and
// polling table at PollInterval after broadcasting a request, until
// either the table resolves it, ctx ends, or timeout elapses.
func Resolve(ctx context.Context, table *Table, ifindex int, localMAC [6]byte, addrs AddrSource, sender FrameSender, target netaddr.IPv4, timeout time.Duration) ([6]byte, error) {
	if mac, ok := table.Get(target); ok {
		return mac, nil
	}
	spa := pickSPA(addrs, ifindex, target)
	if err := SendRequest(sender, ifindex, localMAC, spa, target); err != nil {
		return [6]byte{}, err
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return [6]byte{}, ctx.Err()
		case now := <-ticker.C:
			if mac, ok := table.Get(target); ok {
				return mac, nil
			}
			if now.After(deadline) {
				return [6]byte{}, neterr.Timeout
			}
		}
	}
}

// Input handles one received ARP frame payload on ifindex: it always
// learns the sender's binding, and answers requests targeting a locally
// configured address.
func Input(table *Table, ifindex int, localMAC [6]byte, addrs AddrSource, sender FrameSender, payload []byte) error {
	pkt, err := Decode(payload)
	if err != nil {
		return err
	}
	if !pkt.SPA.IsUnspecified() {
		_ = table.Put(pkt.SPA, pkt.SHA, LearnedTTLMs, false)
	}
	if pkt.Op != OpRequest {
		return nil
	}
	if !hasLocal(addrs, ifindex, pkt.TPA) {
		return nil
	}
	reply := Packet{Op: OpReply, SHA: localMAC, SPA: pkt.TPA, THA: pkt.SHA, TPA: pkt.SPA}
	return sender.SendFrame(ifindex, pkt.SHA, eth.TypeARP, Encode(reply))
}

// Daemon periodically ages every registered table on a fixed tick.
type Daemon struct {
	tables func() []*Table
	period time.Duration
}

// NewDaemon builds a Daemon that ages the tables tables() returns every
// 10 seconds.
func NewDaemon(tables func() []*Table) *Daemon {
	return &Daemon{tables: tables, period: 10 * time.Second}
}

// Run blocks, ticking until ctx is done.
func (d *Daemon) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()
	deltaMs := uint32(d.period / time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range d.tables() {
				t.Tick(deltaMs)
			}
		}
	}
}
