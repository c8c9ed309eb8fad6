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

// Package dhcp implements the DHCP client wire codec and the per-L3
// state machine (INIT/SELECTING/REQUESTING/BOUND/RENEWING/REBINDING)
// that keeps a DHCP-mode L3 interface's address, gateway, and runtime
// options current.
package dhcp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/neterr"
)

// Op codes.
const (
	OpBootRequest = 1
	OpBootReply   = 2
)

// Hardware address type/length for Ethernet.
const (
	HtypeEthernet = 1
	HlenEthernet  = 6
)

// DHCP message types, option 53.
const (
	MsgDiscover = 1
	MsgOffer    = 2
	MsgRequest  = 3
	MsgDecline  = 4
	MsgACK      = 5
	MsgNAK      = 6
	MsgRelease  = 7
	MsgInform   = 8
)

// Option codes consumed or emitted by the client.
const (
	OptSubnetMask           = 1
	OptRouter               = 3
	OptDNS                  = 6
	OptInterfaceMTU         = 26
	OptNTP                  = 42
	OptRequestedIPAddress   = 50
	OptLeaseTime            = 51
	OptMessageType          = 53
	OptServerIdentifier     = 54
	OptParameterRequestList = 55
	OptRenewalT1            = 58
	OptRebindingT2          = 59
	OptEnd                  = 255
)

// ClientPort/ServerPort are the well-known DHCP UDP ports.
const (
	ClientPort = 68
	ServerPort = 67
)

// magicCookie marks the start of the options area, RFC 2131 §3.
const magicCookie = 0x63825363

// fixedFieldsLen is the BOOTP header size before the magic cookie:
// op,htype,hlen,hops(4) + xid(4) + secs,flags(4) + 4*addr(16) +
// chaddr(16) + sname(64) + file(128) = 236 bytes.
const fixedFieldsLen = 236

// Packet is a decoded DHCP message, covering the full message set the
// state machine drives here: DISCOVER/OFFER/REQUEST/ACK plus
// DECLINE/RELEASE/INFORM, using this stack's own
// address types, and Options recast from a slice to a code-keyed map
// since the client only ever needs one value per option code.
type Packet struct {
	Op     byte
	Htype  byte
	Hlen   byte
	Hops   byte
	Xid    uint32
	Secs   uint16
	Flags  uint16
	Ciaddr netaddr.IPv4
	Yiaddr netaddr.IPv4
	Siaddr netaddr.IPv4
	Giaddr netaddr.IPv4
	Chaddr [6]byte

	Options map[byte][]byte
}

// GetOption retrieves an option's raw value, or nil if absent.
func (p *Packet) GetOption(code byte) []byte {
	return p.Options[code]
}

// MessageType extracts option 53 (0 if absent).
func (p *Packet) MessageType() byte {
	if v := p.Options[OptMessageType]; len(v) == 1 {
		return v[0]
	}
	return 0
}

// Marshal serializes p as wire bytes.
func (p *Packet) Marshal() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(p.Op)
	buf.WriteByte(p.Htype)
	buf.WriteByte(p.Hlen)
	buf.WriteByte(p.Hops)
	binary.Write(buf, binary.BigEndian, p.Xid)
	binary.Write(buf, binary.BigEndian, p.Secs)
	binary.Write(buf, binary.BigEndian, p.Flags)

	writeAddr := func(a netaddr.IPv4) {
		b := a.Bytes()
		buf.Write(b[:])
	}
	writeAddr(p.Ciaddr)
	writeAddr(p.Yiaddr)
	writeAddr(p.Siaddr)
	writeAddr(p.Giaddr)

	chaddr := make([]byte, 16)
	copy(chaddr, p.Chaddr[:])
	buf.Write(chaddr)

	buf.Write(make([]byte, 64))  // sname
	buf.Write(make([]byte, 128)) // file

	binary.Write(buf, binary.BigEndian, uint32(magicCookie))

	for code, value := range p.Options {
		buf.WriteByte(code)
		buf.WriteByte(byte(len(value)))
		buf.Write(value)
	}
	buf.WriteByte(OptEnd)

	return buf.Bytes()
}

// Unmarshal parses b into p, validating the magic cookie and the
// well-formedness of the option TLV stream.
func (p *Packet) Unmarshal(b []byte) error {
	if len(b) < fixedFieldsLen+4 {
		return fmt.Errorf("%w: dhcp packet too short (%d bytes)", neterr.WireFormat, len(b))
	}
	r := bytes.NewReader(b)

	readByte := func() byte {
		v, _ := r.ReadByte()
		return v
	}
	p.Op = readByte()
	p.Htype = readByte()
	p.Hlen = readByte()
	p.Hops = readByte()
	binary.Read(r, binary.BigEndian, &p.Xid)
	binary.Read(r, binary.BigEndian, &p.Secs)
	binary.Read(r, binary.BigEndian, &p.Flags)

	readAddr := func() netaddr.IPv4 {
		var a [4]byte
		r.Read(a[:])
		return netaddr.IPv4FromBytes(a[0], a[1], a[2], a[3])
	}
	p.Ciaddr = readAddr()
	p.Yiaddr = readAddr()
	p.Siaddr = readAddr()
	p.Giaddr = readAddr()

	var chaddr [16]byte
	r.Read(chaddr[:])
	copy(p.Chaddr[:], chaddr[:6])

	r.Seek(64+128, 1)

	var cookie uint32
	binary.Read(r, binary.BigEndian, &cookie)
	if cookie != magicCookie {
		return fmt.Errorf("%w: bad dhcp magic cookie 0x%x", neterr.WireFormat, cookie)
	}

	p.Options = make(map[byte][]byte)
	for r.Len() > 0 {
		code := readByte()
		if code == OptEnd {
			break
		}
		if code == 0 { // pad
			continue
		}
		n := int(readByte())
		if r.Len() < n {
			return fmt.Errorf("%w: truncated dhcp option %d", neterr.WireFormat, code)
		}
		value := make([]byte, n)
		r.Read(value)
		p.Options[code] = value
	}
	return nil
}
