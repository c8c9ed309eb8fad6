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

// Package arp implements the per-interface ARP cache, request/reply wire
// codec, and a blocking resolver. A Table is
// owned by one L2 interface; cross-package wiring (which local addresses
// an interface carries, how to transmit a frame) is expressed as small
// interfaces here rather than importing pkg/iface/pkg/dispatch, so
// iface/dispatch can depend on arp without a cycle.
package arp

import (
	"encoding/binary"
	"sync"

	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
)

// TableCapacity is the maximum number of live entries an ARP table holds.
const TableCapacity = 64

// LearnedTTLMs is the TTL a dynamically-learned binding receives: every
// sender (ip, mac) binding observed on the wire is learned with this TTL.
const LearnedTTLMs = 180_000

// Entry is one ARP cache row. IP == 0 marks a free slot.
type Entry struct {
	IP     netaddr.IPv4
	MAC    [6]byte
	TTLMs  uint32
	Static bool
}

// Table is a fixed-capacity, per-L2 ARP cache.
type Table struct {
	mu      sync.Mutex
	entries [TableCapacity]Entry
}

// NewTable returns a Table with the broadcast entry
// (255.255.255.255 -> ff:ff:ff:ff:ff:ff) seeded as static.
func NewTable() *Table {
	t := &Table{}
	_ = t.Put(netaddr.Broadcast, [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, 0, true)
	return t
}

// Put inserts or updates a binding. Static entries never expire
// regardless of ttlMs.
func (t *Table) Put(ip netaddr.IPv4, mac [6]byte, ttlMs uint32, static bool) error {
	if ip.IsUnspecified() {
		return neterr.InvalidArgument
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	freeIdx := -1
	for i := range t.entries {
		if t.entries[i].IP == ip {
			t.entries[i] = Entry{IP: ip, MAC: mac, TTLMs: ttlMs, Static: static}
			return nil
		}
		if freeIdx < 0 && t.entries[i].IP.IsUnspecified() {
			freeIdx = i
		}
	}
	if freeIdx < 0 {
		return neterr.Busy
	}
	t.entries[freeIdx] = Entry{IP: ip, MAC: mac, TTLMs: ttlMs, Static: static}
	return nil
}

// Get returns the MAC bound to ip, if present.
func (t *Table) Get(ip netaddr.IPv4) ([6]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].IP == ip {
			return t.entries[i].MAC, true
		}
	}
	return [6]byte{}, false
}

// Tick ages every non-static entry by deltaMs, clamped at zero, and
// clears any entry that reaches zero.
func (t *Table) Tick(deltaMs uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		e := &t.entries[i]
		if e.IP.IsUnspecified() || e.Static {
			continue
		}
		if deltaMs >= e.TTLMs {
			*e = Entry{}
			continue
		}
		e.TTLMs -= deltaMs
	}
}

// Snapshot returns every occupied entry, for diagnostics (netctl arp).
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, TableCapacity)
	for _, e := range t.entries {
		if !e.IP.IsUnspecified() {
			out = append(out, e)
		}
	}
	return out
}

// Wire opcodes.
const (
	OpRequest = 1
	OpReply   = 2
)

// PacketLen is the fixed size of an ARP-over-Ethernet IPv4 packet.
const PacketLen = 28

// Packet is a decoded ARP message (htype=1, ptype=0x0800, hlen=6, plen=4
// assumed/enforced).
type Packet struct {
	Op  uint16
	SHA [6]byte
	SPA netaddr.IPv4
	THA [6]byte
	TPA netaddr.IPv4
}

// Encode serializes p into a 28-byte ARP payload.
func Encode(p Packet) []byte {
	b := make([]byte, PacketLen)
	binary.BigEndian.PutUint16(b[0:2], 1)      // htype ethernet
	binary.BigEndian.PutUint16(b[2:4], 0x0800) // ptype ipv4
	b[4] = 6                                   // hlen
	b[5] = 4                                   // plen
	binary.BigEndian.PutUint16(b[6:8], p.Op)
	copy(b[8:14], p.SHA[:])
	spa := p.SPA.Bytes()
	copy(b[14:18], spa[:])
	copy(b[18:24], p.THA[:])
	tpa := p.TPA.Bytes()
	copy(b[24:28], tpa[:])
	return b
}

// Decode parses an ARP payload, validating htype/ptype/hlen/plen.
func Decode(b []byte) (Packet, error) {
	if len(b) < PacketLen {
		return Packet{}, neterr.WireFormat
	}
	htype := binary.BigEndian.Uint16(b[0:2])
	ptype := binary.BigEndian.Uint16(b[2:4])
	hlen, plen := b[4], b[5]
	if htype != 1 || ptype != 0x0800 || hlen != 6 || plen != 4 {
		return Packet{}, neterr.WireFormat
	}
	var p Packet
	p.Op = binary.BigEndian.Uint16(b[6:8])
	copy(p.SHA[:], b[8:14])
	p.SPA = netaddr.IPv4FromBytes(b[14], b[15], b[16], b[17])
	copy(p.THA[:], b[18:24])
	p.TPA = netaddr.IPv4FromBytes(b[24], b[25], b[26], b[27])
	return p, nil
}
