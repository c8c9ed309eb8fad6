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

// Package netdev defines the NIC driver capability set and the bus that
// enumerates drivers and always appends a loopback. A driver is a closed
// set of variants chosen at init, not a dynamically-extensible plugin:
// only a virtio-net-equivalent backend and the loopback are modeled.
package netdev

import "github.com/redactedos/netstack/pkg/pbuf"

// Kind classifies a network interface for display and policy purposes.
type Kind int

const (
	KindEthernet Kind = iota
	KindWifi
	KindLoopback
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "eth"
	case KindWifi:
		return "wifi"
	case KindLoopback:
		return "loopback"
	default:
		return "other"
	}
}

// Driver is the capability set every NIC backend exposes. It is the Go
// realization of the original kernel's NetDriver base class.
type Driver interface {
	// InitAt initializes the device at the given bus address, assigning
	// it IRQ numbers starting at irqBase. It returns false if the device
	// could not be brought up; the bus must not abort enumeration of
	// other devices when this happens.
	InitAt(addr string, irqBase int) bool

	// AllocatePacket returns a transmit buffer of the requested payload
	// size with headroom reserved for this driver's HeaderSize().
	AllocatePacket(size int) (*pbuf.Buffer, error)

	// SendPacket submits buf for transmission. It returns false if the
	// driver's TX ring rejected the submission (caller should count this
	// as a DriverFailure and retry later, never block forever).
	SendPacket(buf *pbuf.Buffer) bool

	// HandleReceivePacket returns the next received buffer, or nil if
	// none is pending. The returned buffer's headroom already accounts
	// for HeaderSize() driver-prepended bytes.
	HandleReceivePacket() *pbuf.Buffer

	// HandleSentPacket is invoked once per completed transmission to let
	// the driver reclaim TX descriptor slots.
	HandleSentPacket()

	MAC() [6]byte
	MTU() int
	HeaderSize() int
	Speed() int   // Mbps, 0 if unknown
	Duplex() bool // true = full duplex

	// SyncMulticast reprograms the device's multicast filter to exactly
	// the given set of MAC addresses (used by mDNS/IGMP group joins).
	SyncMulticast(macs [][6]byte) error

	Kind() Kind
}
