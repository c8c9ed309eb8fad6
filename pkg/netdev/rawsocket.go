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
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/pbuf"
)

// RawSocketDriver is the one real (non-loopback) NIC backend this stack
// ships: an AF_PACKET socket bound to an existing host interface, the
// closest a hosted process gets to a freestanding kernel's PCI-enumerated
// virtio-net NIC. InitAt resolves and brings up the link via
// netlink.LinkByName + netlink.LinkSetUp; SendPacket and the background
// receive loop move whole Ethernet frames across the socket.
type RawSocketDriver struct {
	mu   sync.Mutex
	fd   int
	link netlink.Link
	mac  [6]byte
	mtu  int
	kind Kind
	hdr  int

	rx       []*pbuf.Buffer
	stopRecv chan struct{}
}

// NewRawSocketDriver returns a driver bound to no socket yet; call InitAt
// to resolve the named host link and open its AF_PACKET socket.
func NewRawSocketDriver(kind Kind) *RawSocketDriver {
	return &RawSocketDriver{kind: kind, hdr: 14, fd: -1}
}

// InitAt resolves addr as a host interface name (irqBase is unused; a
// raw socket has no IRQ vector of its own), brings the link up if it
// isn't already, and opens an AF_PACKET/SOCK_RAW socket bound to it.
func (d *RawSocketDriver) InitAt(addr string, irqBase int) bool {
	link, err := netlink.LinkByName(addr)
	if err != nil {
		klog.Warningf("netdev: rawsocket: LinkByName(%s): %v", addr, err)
		return false
	}
	if link.Attrs().OperState != netlink.OperUp {
		if err := netlink.LinkSetUp(link); err != nil {
			klog.Warningf("netdev: rawsocket: LinkSetUp(%s): %v", addr, err)
			return false
		}
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		klog.Warningf("netdev: rawsocket: socket(AF_PACKET): %v", err)
		return false
	}
	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  link.Attrs().Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		klog.Warningf("netdev: rawsocket: bind(%s): %v", addr, err)
		return false
	}

	var mac [6]byte
	copy(mac[:], link.Attrs().HardwareAddr)

	d.mu.Lock()
	d.fd = fd
	d.link = link
	d.mac = mac
	d.mtu = link.Attrs().MTU
	d.stopRecv = make(chan struct{})
	d.mu.Unlock()

	go d.recvLoop(fd, d.stopRecv)
	return true
}

// htons converts a 16-bit value to network byte order, the same
// conversion every AF_PACKET caller needs for the protocol field.
func htons(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.LittleEndian.Uint16(b[:])
}

// recvLoop reads whole frames off fd until stop is closed, queuing them
// for HandleReceivePacket the same way MemDriver.Inject queues test
// frames, just fed by the kernel instead of a test.
func (d *RawSocketDriver) recvLoop(fd int, stop chan struct{}) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}
		pb := pbuf.Wrap(append([]byte(nil), buf[:n]...), nil, nil)
		d.mu.Lock()
		d.rx = append(d.rx, pb)
		d.mu.Unlock()
	}
}

func (d *RawSocketDriver) AllocatePacket(size int) (*pbuf.Buffer, error) {
	return pbuf.Alloc(d.hdr+size+pbuf.EthIPv4UDPHeadroom, d.hdr, pbuf.EthIPv4UDPHeadroom)
}

func (d *RawSocketDriver) SendPacket(buf *pbuf.Buffer) bool {
	d.mu.Lock()
	fd := d.fd
	d.mu.Unlock()
	if fd < 0 {
		return false
	}
	if err := unix.Send(fd, buf.Data(), 0); err != nil {
		klog.Warningf("netdev: rawsocket: send: %v", err)
		return false
	}
	return true
}

func (d *RawSocketDriver) HandleReceivePacket() *pbuf.Buffer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rx) == 0 {
		return nil
	}
	b := d.rx[0]
	d.rx = d.rx[1:]
	return b
}

func (d *RawSocketDriver) HandleSentPacket() {}

func (d *RawSocketDriver) MAC() [6]byte { return d.mac }
func (d *RawSocketDriver) MTU() int     { return d.mtu }
func (d *RawSocketDriver) HeaderSize() int { return d.hdr }
func (d *RawSocketDriver) Speed() int      { return 0 }
func (d *RawSocketDriver) Duplex() bool    { return true }
func (d *RawSocketDriver) Kind() Kind      { return d.kind }

// SyncMulticast joins the socket to each given multicast MAC via
// PACKET_ADD_MEMBERSHIP, the standard AF_PACKET primitive for receiving
// frames addressed to a multicast group (mDNS's 01:00:5e:00:00:fb).
func (d *RawSocketDriver) SyncMulticast(macs [][6]byte) error {
	d.mu.Lock()
	fd := d.fd
	ifindex := 0
	if d.link != nil {
		ifindex = d.link.Attrs().Index
	}
	d.mu.Unlock()
	if fd < 0 {
		return fmt.Errorf("netdev: rawsocket: not initialized")
	}
	for _, mac := range macs {
		mreq := unix.PacketMreq{
			Ifindex: int32(ifindex),
			Type:    unix.PACKET_MR_MULTICAST,
			Alen:    6,
		}
		copy(mreq.Address[:], mac[:])
		if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
			return fmt.Errorf("netdev: rawsocket: join multicast %x: %w", mac, err)
		}
	}
	return nil
}

// Close stops the receive loop and closes the socket.
func (d *RawSocketDriver) Close() error {
	d.mu.Lock()
	fd := d.fd
	stop := d.stopRecv
	d.fd = -1
	d.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	if fd >= 0 {
		return unix.Close(fd)
	}
	return nil
}
