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

package netdev

import (
	"sync"

	"github.com/redactedos/netstack/pkg/pbuf"
)

// MemDriver is an in-memory driver used by every other package's tests
// in place of a real NIC: SendPacket appends to an internal "wire" that
// Sent drains and Loopback moves into this same driver's RX queue, next
// to frames queued by Inject. This is
// how the stack's loopback/round-trip properties are exercised without
// root privileges or a real kernel network stack.
type MemDriver struct {
	mu   sync.Mutex
	mac  [6]byte
	mtu  int
	hdr  int
	kind Kind
	sent []*pbuf.Buffer
	rx   []*pbuf.Buffer
}

// NewMemDriver returns a MemDriver with the given MAC and MTU.
func NewMemDriver(mac [6]byte, mtu int, kind Kind) *MemDriver {
	return &MemDriver{mac: mac, mtu: mtu, kind: kind}
}

func (d *MemDriver) InitAt(addr string, irqBase int) bool { return true }

func (d *MemDriver) AllocatePacket(size int) (*pbuf.Buffer, error) {
	return pbuf.Alloc(d.hdr+size+pbuf.EthIPv4UDPHeadroom, d.hdr, pbuf.EthIPv4UDPHeadroom)
}

func (d *MemDriver) SendPacket(buf *pbuf.Buffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp, err := pbuf.Alloc(buf.Len(), 0, 0)
	if err != nil {
		return false
	}
	copy(cp.Data(), buf.Data())
	d.sent = append(d.sent, cp)
	return true
}

func (d *MemDriver) HandleReceivePacket() *pbuf.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return nil
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b
}

func (d *MemDriver) HandleSentPacket() {}

func (d *MemDriver) MAC() [6]byte { return d.mac }
func (d *MemDriver) MTU() int     { return d.mtu }
func (d *MemDriver) HeaderSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hdr
}
func (d *MemDriver) Speed() int    { return 1000 }
func (d *MemDriver) Duplex() bool  { return true }
func (d *MemDriver) Kind() Kind    { return d.kind }

func (d *MemDriver) SyncMulticast(macs [][6]byte) error { return nil }

// Inject enqueues raw as a received frame, as if it had arrived on the
// wire.
func (d *MemDriver) Inject(raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := pbuf.Wrap(append([]byte(nil), raw...), nil, nil)
	d.rx = append(d.rx, b)
}

// Sent drains and returns every buffer SendPacket has accepted so far.
func (d *MemDriver) Sent() []*pbuf.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.sent
	d.sent = nil
	return out
}

// Loopback wires d's SendPacket output directly back to its own RX
// queue, modeling lo0 (header_size=0, no real wire).
func (d *MemDriver) Loopback() {
	d.mu.Lock()
	sent := d.sent
	d.sent = nil
	d.mu.Unlock()
	for _, buf := range sent {
		d.Inject(buf.Data())
	}
}
