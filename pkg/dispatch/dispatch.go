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

// Package dispatch is net_task: the single goroutine that is the only
// caller of driver.SendPacket and the protocol layers' receive paths.
// Everything else — DHCP, DNS, NTP, ARP aging, application sockets —
// reaches the wire only through Loop.SendFrame, an enqueue-only API.
package dispatch

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/arp"
	"github.com/redactedos/netstack/pkg/eth"
	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/pbuf"
)

// RXQueueDepth/TXQueueDepth bound the staging queues; a full queue
// yields neterr.Busy to the producer rather than blocking it, keeping
// the dispatch loop the only task that ever waits on the wire.
const (
	RXQueueDepth = 256
	TXQueueDepth = 256
	IdleSleep    = 10 * time.Millisecond
)

type rxItem struct {
	ifindex int
	buf     *pbuf.Buffer
}

type txItem struct {
	ifindex   int
	dstMAC    [6]byte
	etherType uint16
	payload   []byte
}

// Loop is net_task. It owns the RX/TX staging channels and is the sole
// producer for every NIC's SendPacket and the sole consumer that feeds
// eth_input to the protocol layers.
type Loop struct {
	mgr  *iface.Manager
	ipv4 *ipv4.Stack

	rx chan rxItem
	tx chan txItem
}

// NewLoop builds a Loop over mgr's interfaces, demuxing IPv4 frames to
// ipv4Stack.
func NewLoop(mgr *iface.Manager, ipv4Stack *ipv4.Stack) *Loop {
	return &Loop{
		mgr:  mgr,
		ipv4: ipv4Stack,
		rx:   make(chan rxItem, RXQueueDepth),
		tx:   make(chan txItem, TXQueueDepth),
	}
}

// InjectRX enqueues a received buffer for eth_input processing. This is
// what a driver's RX interrupt handler calls: enqueue only, never
// process inline.
func (l *Loop) InjectRX(ifindex int, buf *pbuf.Buffer) error {
	select {
	case l.rx <- rxItem{ifindex: ifindex, buf: buf}:
		return nil
	default:
		buf.Unref()
		return neterr.Busy
	}
}

// SendFrame implements arp.FrameSender and is the Sender ipv4.Stack is
// built with: it stages a frame for transmission and returns
// immediately, never touching the driver itself. This is net_tx_frame.
func (l *Loop) SendFrame(ifindex int, dstMAC [6]byte, etherType uint16, payload []byte) error {
	select {
	case l.tx <- txItem{ifindex: ifindex, dstMAC: dstMAC, etherType: etherType, payload: payload}:
		return nil
	default:
		return neterr.Busy
	}
}

// Run drains RX then TX once per iteration, FIFO within each queue, and
// sleeps IdleSleep only when neither queue had work.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		didRX := l.drainOneRX()
		didTX := l.drainOneTX()
		if didRX || didTX {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(IdleSleep):
		}
	}
}

func (l *Loop) drainOneRX() bool {
	select {
	case item := <-l.rx:
		l.ethInput(item.ifindex, item.buf)
		return true
	default:
		return false
	}
}

func (l *Loop) drainOneTX() bool {
	select {
	case item := <-l.tx:
		l.driverSend(item)
		return true
	default:
		return false
	}
}

// ethInput parses the Ethernet header and dispatches by ethertype.
// IPv6 and VLAN frames are parsed (to keep the header offset honest for
// future work) and then dropped.
func (l *Loop) ethInput(ifindex int, buf *pbuf.Buffer) {
	defer buf.Unref()

	data := buf.Data()
	hdr, err := eth.Decode(data)
	if err != nil {
		klog.V(4).Infof("dispatch: dropping short frame on ifindex %d: %v", ifindex, err)
		return
	}
	payload := data[eth.HeaderLen:]

	switch hdr.EtherType {
	case eth.TypeARP:
		l2, ok := l.mgr.ByIfIndex(ifindex)
		if !ok {
			return
		}
		if err := arp.Input(l2.ARP, ifindex, l2.MAC, l.mgr, l, payload); err != nil {
			klog.V(4).Infof("dispatch: arp_input error on ifindex %d: %v", ifindex, err)
		}
	case eth.TypeIPv4:
		l.ipv4.Input(ifindex, payload)
	case eth.TypeIPv6, eth.TypeVLAN:
		// Parsed far enough to confirm the header fits; out of scope
		// beyond that.
	default:
	}
}

// driverSend is the only call site in the whole stack for
// netdev.Driver.SendPacket.
func (l *Loop) driverSend(item txItem) {
	l2, ok := l.mgr.ByIfIndex(item.ifindex)
	if !ok {
		klog.Warningf("dispatch: tx for unknown ifindex %d dropped", item.ifindex)
		return
	}

	frameLen := eth.HeaderLen + len(item.payload)
	buf, err := l2.Driver.AllocatePacket(frameLen)
	if err != nil {
		klog.Warningf("dispatch: allocate failed for ifindex %d: %v", item.ifindex, err)
		return
	}
	data := buf.Data()
	if len(data) < frameLen {
		klog.Warningf("dispatch: driver allocated %d bytes, need %d", len(data), frameLen)
		buf.Unref()
		return
	}
	h := eth.Header{Dst: item.dstMAC, Src: l2.MAC, EtherType: item.etherType}
	h.Encode(data)
	copy(data[eth.HeaderLen:frameLen], item.payload)

	if !l2.Driver.SendPacket(buf) {
		klog.Warningf("dispatch: SendPacket failed on ifindex %d", item.ifindex)
	}
	buf.Unref()
}
