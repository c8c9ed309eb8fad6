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

// Package ipv4 implements IPv4 header encode/decode, the outbound
// tx-scope next-hop selection, receive-side fragment reassembly, and
// the stack's send/receive entry points.
package ipv4

import (
	"encoding/binary"

	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/wire"
)

// Protocol numbers this stack dispatches on.
const (
	ProtoICMP = 1
	ProtoUDP  = 17
)

// HeaderLen is the fixed (no-options) IPv4 header length.
const HeaderLen = 20

// DefaultTTL is used when a caller passes ttl==0 to Send.
const DefaultTTL = 64

// Header is a decoded IPv4 header. Options are never emitted or
// accepted; IHL must equal 5.
type Header struct {
	TOS        byte
	TotalLen   uint16
	ID         uint16
	DF         bool
	MF         bool
	FragOffset uint16 // in 8-byte units, per RFC 791
	TTL        byte
	Protocol   byte
	Checksum   uint16
	Src        netaddr.IPv4
	Dst        netaddr.IPv4
}

// EncodeHeader serializes h as a 20-byte header covering a payload of
// payloadLen bytes, computing and filling in the checksum.
func EncodeHeader(h Header, payloadLen int) []byte {
	b := make([]byte, HeaderLen)
	b[0] = 4<<4 | 5 // version=4, IHL=5 (no options)
	b[1] = h.TOS
	binary.BigEndian.PutUint16(b[2:4], uint16(HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	flagsFrag := h.FragOffset & 0x1FFF
	if h.DF {
		flagsFrag |= 0x4000
	}
	if h.MF {
		flagsFrag |= 0x2000
	}
	binary.BigEndian.PutUint16(b[6:8], flagsFrag)
	b[8] = h.TTL
	b[9] = h.Protocol
	// b[10:12] checksum filled below
	src := h.Src.Bytes()
	copy(b[12:16], src[:])
	dst := h.Dst.Bytes()
	copy(b[16:20], dst[:])
	binary.BigEndian.PutUint16(b[10:12], wire.Checksum(b))
	return b
}

// DecodeHeader parses a header from the front of b, validating
// version, IHL, total length, and checksum, and returns the header
// plus the payload slice (b[HeaderLen:TotalLen]).
func DecodeHeader(b []byte) (Header, []byte, error) {
	if len(b) < HeaderLen {
		return Header{}, nil, neterr.WireFormat
	}
	version := b[0] >> 4
	ihl := b[0] & 0x0F
	if version != 4 || ihl != 5 {
		return Header{}, nil, neterr.WireFormat
	}
	if wire.Checksum(b[:HeaderLen]) != 0 {
		return Header{}, nil, neterr.WireFormat
	}
	totalLen := binary.BigEndian.Uint16(b[2:4])
	if int(totalLen) > len(b) || int(totalLen) < HeaderLen {
		return Header{}, nil, neterr.WireFormat
	}
	flagsFrag := binary.BigEndian.Uint16(b[6:8])
	h := Header{
		TOS:        b[1],
		TotalLen:   totalLen,
		ID:         binary.BigEndian.Uint16(b[4:6]),
		DF:         flagsFrag&0x4000 != 0,
		MF:         flagsFrag&0x2000 != 0,
		FragOffset: flagsFrag & 0x1FFF,
		TTL:        b[8],
		Protocol:   b[9],
		Checksum:   binary.BigEndian.Uint16(b[10:12]),
		Src:        netaddr.IPv4FromBytes(b[12], b[13], b[14], b[15]),
		Dst:        netaddr.IPv4FromBytes(b[16], b[17], b[18], b[19]),
	}
	return h, b[HeaderLen:totalLen], nil
}
